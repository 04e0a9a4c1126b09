package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMaps(t *testing.T) {
	src := m{
		"a": 10,
		"b": l{
			m{
				"id": 1,
				"c": l{
					m{"id": 1, "a": 1},
					m{"id": 2, "a": 2},
					m{"id": 3, "a": 3},
				},
			},
		},
	}
	dst := m{
		"c": 1,
		"b": l{
			m{
				"id": 1,
				"d":  1,
				"c": l{
					m{"id": 1, "b": 1},
					m{"id": 2, "b": 2},
					m{"id": 3, "b": 3},
					m{"id": 4, "b": 4},
				},
			},
		},
	}

	res := mergeMaps(src, dst)

	assert.Equal(t, m{
		"c": 1,
		"a": 10,
		"b": l{
			m{
				"id": 1,
				"d":  1,
				"c": l{
					m{"id": 1, "a": 1, "b": 1},
					m{"id": 2, "a": 2, "b": 2},
					m{"id": 3, "a": 3, "b": 3},
					m{"id": 4, "b": 4},
				},
			},
		},
	}, res)
}

func TestMergeMapsByPosition(t *testing.T) {
	src := m{
		"list": l{m{"a": 1}, m{"a": 2}},
	}
	dst := m{
		"list": l{m{"b": 1}, m{"b": 2}},
	}

	res := mergeMaps(src, dst)

	assert.Equal(t, m{
		"list": l{m{"a": 1, "b": 1}, m{"a": 2, "b": 2}},
	}, res)
}

func TestMergeMapsDifferentObjects(t *testing.T) {
	src := m{
		"list": l{m{"a": 1}, m{"a": 2}, m{"a": 3}},
	}
	dst := m{
		"list": l{"1", "2"},
	}

	res := mergeMaps(src, dst)

	assert.Equal(t, m{
		"list": l{"1", "2", m{"a": 3}},
	}, res)
}

func TestMergeMapsNested(t *testing.T) {
	src := m{
		"a": m{"b": 1},
	}
	dst := m{
		"a": m{"c": 2},
	}

	res := mergeMaps(src, dst)

	assert.Equal(t, m{
		"a": m{"b": 1, "c": 2},
	}, res)
}

func TestDeepCopy(t *testing.T) {
	src := m{"a": l{m{"b": 1}}, "c": "d"}

	res := deepCopy(src).(map[string]interface{})
	assert.Equal(t, src, res)

	res["a"].([]interface{})[0].(map[string]interface{})["b"] = 2
	assert.Equal(t, 1, src["a"].([]interface{})[0].(map[string]interface{})["b"])
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		path   []interface{}
		prefix []interface{}
		want   bool
	}{
		{"empty prefix", l{"a"}, nil, true},
		{"equal", l{"a", 1}, l{"a", 1}, true},
		{"decoded index", l{"a", float64(1), "b"}, l{"a", 1}, true},
		{"other index", l{"a", 2}, l{"a", 1}, false},
		{"longer prefix", l{"a"}, l{"a", "b"}, false},
		{"other field", l{"b", "c"}, l{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasPrefix(tt.path, tt.prefix))
		})
	}
}

func TestAppendPathCopies(t *testing.T) {
	base := make([]interface{}, 1, 4)
	base[0] = "a"

	left := appendPath(base, "b")
	right := appendPath(base, "c")

	assert.Equal(t, l{"a", "b"}, left)
	assert.Equal(t, l{"a", "c"}, right)
}
