package operation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
)

// MaxIncludeConditions is the width of the include flags mask.
const MaxIncludeConditions = 64

var (
	ErrTooManyIncludeConditions = errors.New("too many include conditions")
	ErrInvalidConditionValue    = errors.New("include condition variable is not a boolean")
)

const (
	skipDirective    = "skip"
	includeDirective = "include"
	ifArgument       = "if"
)

// IncludeCondition is a pair of variables taken from @skip(if: $v) and @include(if: $v).
// Empty names mean the directive is absent.
type IncludeCondition struct {
	Skip    string
	Include string
}

// TryCreateIncludeCondition extracts variable driven @skip/@include directives.
// Literal arguments are handled by the document rewriter and are ignored here.
func TryCreateIncludeCondition(directives ast.DirectiveList) (IncludeCondition, bool) {
	var cond IncludeCondition
	for _, d := range directives {
		switch d.Name {
		case skipDirective:
			if v, ok := variableArgument(d); ok {
				cond.Skip = v
			}
		case includeDirective:
			if v, ok := variableArgument(d); ok {
				cond.Include = v
			}
		}
	}
	return cond, cond.Skip != "" || cond.Include != ""
}

func variableArgument(d *ast.Directive) (string, bool) {
	if len(d.Arguments) != 1 || d.Arguments[0].Name != ifArgument {
		return "", false
	}
	v := d.Arguments[0].Value
	if v == nil || v.Kind != ast.Variable {
		return "", false
	}
	return v.Raw, true
}

// IsIncluded evaluates the condition against variable values.
func (c IncludeCondition) IsIncluded(variables map[string]interface{}) (bool, error) {
	if c.Skip != "" {
		skip, err := boolVariable(variables, c.Skip, false)
		if err != nil {
			return false, err
		}
		if skip {
			return false, nil
		}
	}
	if c.Include != "" {
		return boolVariable(variables, c.Include, true)
	}
	return true, nil
}

func boolVariable(variables map[string]interface{}, name string, absent bool) (bool, error) {
	v, ok := variables[name]
	if !ok || v == nil {
		return absent, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: $%s is %T", ErrInvalidConditionValue, name, v)
	}
	return b, nil
}

// IncludeConditionCollection interns conditions and assigns each a bit index.
type IncludeConditionCollection struct {
	conditions []IncludeCondition
	index      map[IncludeCondition]int
}

func NewIncludeConditionCollection() *IncludeConditionCollection {
	return &IncludeConditionCollection{index: make(map[IncludeCondition]int)}
}

// Add returns the index of the condition, registering it on first sight.
func (c *IncludeConditionCollection) Add(cond IncludeCondition) (int, error) {
	if i, ok := c.index[cond]; ok {
		return i, nil
	}
	if len(c.conditions) == MaxIncludeConditions {
		return 0, fmt.Errorf("%w: an operation supports at most %d distinct @skip/@include conditions", ErrTooManyIncludeConditions, MaxIncludeConditions)
	}
	i := len(c.conditions)
	c.conditions = append(c.conditions, cond)
	c.index[cond] = i
	return i, nil
}

func (c *IncludeConditionCollection) IndexOf(cond IncludeCondition) (int, bool) {
	i, ok := c.index[cond]
	return i, ok
}

func (c *IncludeConditionCollection) At(i int) IncludeCondition {
	return c.conditions[i]
}

func (c *IncludeConditionCollection) Len() int {
	return len(c.conditions)
}

// CreateIncludeFlags evaluates every condition; bit i is set when condition i includes.
func (c *IncludeConditionCollection) CreateIncludeFlags(variables map[string]interface{}) (uint64, error) {
	var flags uint64
	for i, cond := range c.conditions {
		included, err := cond.IsIncluded(variables)
		if err != nil {
			return 0, err
		}
		if included {
			flags |= 1 << uint(i)
		}
	}
	return flags, nil
}

// collapseIncludeMasks drops masks dominated by a less restrictive one.
// A nil result means the selection is unconditional.
func collapseIncludeMasks(masks []uint64) []uint64 {
	if len(masks) == 0 {
		return nil
	}

	sorted := make([]uint64, len(masks))
	copy(sorted, masks)
	slices.Sort(sorted)

	if sorted[0] == 0 {
		return nil
	}

	res := make([]uint64, 0, len(sorted))
	for _, m := range sorted {
		redundant := false
		for _, k := range res {
			if k&m == k {
				redundant = true
				break
			}
		}
		if !redundant {
			res = append(res, m)
		}
	}
	return res
}

// isIncludedByMasks reports whether any mask is a subset of flags.
func isIncludedByMasks(masks []uint64, flags uint64) bool {
	if len(masks) == 0 {
		return true
	}
	for _, m := range masks {
		if m&flags == m {
			return true
		}
	}
	return false
}
