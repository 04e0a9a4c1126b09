package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrMethodNotAllowed   = errors.New("only POST requests are supported")
	ErrMissingQuery       = errors.New("missing query from request")
	ErrUnknownContentType = errors.New("unknown content-type")
)

// Request is one GraphQL operation sent by a client or to a source.
type Request struct {
	// ID identifies the request in logs and traces.
	ID            string                 `json:"-"`
	Original      *http.Request          `json:"-"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName *string                `json:"operationName"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// Name returns the operation name or an empty string.
func (r *Request) Name() string {
	if r.OperationName == nil {
		return ""
	}
	return *r.OperationName
}

type File interface {
	io.Reader
	io.Closer
}

// Upload represent file and it's name
type Upload struct {
	File     File
	FileName string
}

// Batch is the result of Parse. IsBatchMode is set when the body was a JSON array.
type Batch struct {
	Requests    []*Request
	IsBatchMode bool
}

// Parse reads the operations of an HTTP request. JSON bodies and multipart
// uploads following the GraphQL multipart request spec are supported.
func Parse(r *http.Request) (*Batch, error) {
	if r.Method != http.MethodPost {
		return nil, ErrMethodNotAllowed
	}

	var (
		batch *Batch
		err   error
	)

	contentType := strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
	switch contentType {
	case "text/plain", "application/json", "":
		var body []byte
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encountered error reading body: %w", err)
		}
		batch, err = parseBody(body)
	case "multipart/form-data":
		batch, err = parseMultipart(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, contentType)
	}
	if err != nil {
		return nil, err
	}

	for _, req := range batch.Requests {
		req.Original = r
	}
	return batch, nil
}

// parseBody takes byte body of request and tries to parse it.
func parseBody(body []byte) (*Batch, error) {
	batch := &Batch{IsBatchMode: IsBatchMode(body)}

	if batch.IsBatchMode {
		if err := json.Unmarshal(body, &batch.Requests); err != nil {
			return nil, fmt.Errorf("unable to parse given request in batch mode: %w", err)
		}
	} else {
		var single Request
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("unable to parse given request in single mode: %w", err)
		}
		batch.Requests = []*Request{&single}
	}

	for _, r := range batch.Requests {
		if r == nil || r.Query == "" {
			return nil, ErrMissingQuery
		}
	}

	return batch, nil
}

// IsBatchMode reports whether the first JSON token of body opens an array.
func IsBatchMode(body []byte) bool {
	for _, c := range body {
		switch c {
		case '[':
			return true
		case '{':
			return false
		}
	}
	return false
}
