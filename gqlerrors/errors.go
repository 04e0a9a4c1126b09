package gqlerrors

import (
	"errors"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	ValidationFailedError = "GRAPHQL_VALIDATION_FAILED"
	UndefinedError        = "UNDEFINED_ERROR"
	PlanningFailedError   = "PLANNING_FAILED"
	ExecutionFailedError  = "EXECUTION_FAILED"
	SourceError           = "SOURCE_ERROR"
	InvalidNodeIDError    = "INVALID_NODE_ID"
	CancelledError        = "CANCELLED"
	NonNullViolationError = "NON_NULL_VIOLATION"
)

type Location struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// Error represents a graphql error
type Error struct {
	Extensions map[string]interface{} `json:"extensions,omitempty"`
	Message    string                 `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Code returns extensions.code or an empty string
func (e *Error) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// NewError returns a graphql error with the given code and message
func NewError(code string, err error) *Error {
	return &Error{
		Message: err.Error(),
		Extensions: map[string]interface{}{
			"code": code,
		},
	}
}

// NewPathError returns a graphql error attributed to the given response path
func NewPathError(code string, err error, path []interface{}) *Error {
	e := NewError(code, err)
	e.Path = path
	return e
}

// ErrorList represents a list of errors
type ErrorList []*Error

// ExtendErrorList adds provided err as *Error
func ExtendErrorList(errs ErrorList, err error) ErrorList {
	return append(errs, FormatError(err)...)
}

// Error returns a string representation of each error
func (list ErrorList) Error() string {
	acc := make([]string, len(list))

	for i, err := range list {
		acc[i] = err.Error()
	}

	return strings.Join(acc, ". ")
}

// FormatError converts any error into the graphql error envelope
func FormatError(err error) ErrorList {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case ErrorList:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
	case *Error:
		return ErrorList{e}
	case *gqlerror.Error:
		var locations []Location
		for _, loc := range e.Locations {
			locations = append(locations, Location(loc))
		}
		ext := e.Extensions
		if len(ext) == 0 {
			ext = map[string]interface{}{"code": UndefinedError}
		}
		return ErrorList{&Error{
			Extensions: ext,
			Message:    e.Message,
			Locations:  locations,
			Path:       formatPath(e.Path),
		}}
	case gqlerror.List:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
	default:
		var gqlErr *Error
		if errors.As(err, &gqlErr) {
			return ErrorList{gqlErr}
		}
		return ErrorList{
			NewError(UndefinedError, err),
		}
	}
}

func formatPath(path ast.Path) []interface{} {
	if len(path) == 0 {
		return nil
	}
	res := make([]interface{}, len(path))
	for i, el := range path {
		switch v := el.(type) {
		case ast.PathIndex:
			res[i] = int(v)
		case ast.PathName:
			res[i] = string(v)
		}
	}
	return res
}
