package executor

import (
	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/operation"
)

// target is one object of the result a node merges its response into.
type target struct {
	object map[string]interface{}
	path   []interface{}
	// ancestors[i] is the object reached after the first i path segments.
	ancestors []map[string]interface{}
}

// collectTargets finds the objects at path. Lists are flattened and fragment
// segments keep only objects whose __typename matches.
func collectTargets(data map[string]interface{}, path operation.SelectionPath) []*target {
	segments := path.Segments()
	ancestors := make([]map[string]interface{}, len(segments)+1)

	var res []*target
	var walkObject func(obj map[string]interface{}, depth int, respPath []interface{})
	var walkValue func(v interface{}, depth int, respPath []interface{})

	walkObject = func(obj map[string]interface{}, depth int, respPath []interface{}) {
		ancestors[depth] = obj
		if depth == len(segments) {
			res = append(res, &target{
				object:    obj,
				path:      respPath,
				ancestors: append([]map[string]interface{}(nil), ancestors...),
			})
			return
		}

		seg := segments[depth]
		if seg.Kind == operation.InlineFragmentSegment {
			if typename, _ := obj[common.TypenameFieldName].(string); typename == seg.Name {
				walkObject(obj, depth+1, respPath)
			}
			return
		}
		walkValue(obj[seg.Name], depth+1, appendPath(respPath, seg.Name))
	}

	walkValue = func(v interface{}, depth int, respPath []interface{}) {
		switch val := v.(type) {
		case map[string]interface{}:
			walkObject(val, depth, respPath)
		case []interface{}:
			for i, item := range val {
				walkValue(item, depth, appendPath(respPath, i))
			}
		}
	}

	walkObject(data, 0, nil)
	return res
}
