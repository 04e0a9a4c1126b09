package requests

import "github.com/buildbuildio/fusion/gqlerrors"

type Responses []*Response

// Response is the GraphQL response envelope. Data is null when the
// operation could not be executed at all.
type Response struct {
	Errors     gqlerrors.ErrorList    `json:"errors,omitempty"`
	Data       map[string]interface{} `json:"data"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// NewErrorResponse returns a response without data carrying err.
func NewErrorResponse(err error) *Response {
	return &Response{Errors: gqlerrors.FormatError(err)}
}

// HasErrors reports whether the response carries at least one error.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}
