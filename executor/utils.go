package executor

// mergeMaps will merge the right map into the left map recursively
func mergeMaps(left, right map[string]interface{}) map[string]interface{} {
	for key, rightVal := range right {
		leftVal, present := left[key]
		if !present {
			left[key] = rightVal
			continue
		}
		left[key] = mergeValues(leftVal, rightVal)
	}
	return left
}

// mergeSlices merges the right slice into the left slice position by position.
func mergeSlices(left, right []interface{}) []interface{} {
	for i, rightVal := range right {
		if i < len(left) {
			left[i] = mergeValues(left[i], rightVal)
			continue
		}
		left = append(left, rightVal)
	}
	return left
}

func mergeValues(left, right interface{}) interface{} {
	// If both values is map[string]interface{} - recursively merge it
	lMap, ok1 := left.(map[string]interface{})
	rMap, ok2 := right.(map[string]interface{})
	if ok1 && ok2 {
		return mergeMaps(lMap, rMap)
	}

	lSlice, ok1 := left.([]interface{})
	rSlice, ok2 := right.([]interface{})
	if ok1 && ok2 {
		return mergeSlices(lSlice, rSlice)
	}

	return right
}

// deepCopy copies maps and slices of a decoded JSON value.
func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		res := make(map[string]interface{}, len(val))
		for k, item := range val {
			res[k] = deepCopy(item)
		}
		return res
	case []interface{}:
		res := make([]interface{}, len(val))
		for i, item := range val {
			res[i] = deepCopy(item)
		}
		return res
	default:
		return v
	}
}

// appendPath returns a new response path; response paths are shared between siblings.
func appendPath(path []interface{}, elems ...interface{}) []interface{} {
	res := make([]interface{}, 0, len(path)+len(elems))
	res = append(res, path...)
	return append(res, elems...)
}

// hasPrefix reports whether prefix is a leading part of path.
func hasPrefix(path, prefix []interface{}) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if !pathElemEqual(path[i], prefix[i]) {
			return false
		}
	}
	return true
}

// pathElemEqual compares path elements, indexes may be ints or decoded float64s.
func pathElemEqual(a, b interface{}) bool {
	if ai, ok := toIndex(a); ok {
		bi, ok := toIndex(b)
		return ok && ai == bi
	}
	return a == b
}

func toIndex(v interface{}) (int, bool) {
	switch i := v.(type) {
	case int:
		return i, true
	case float64:
		return int(i), true
	}
	return 0, false
}
