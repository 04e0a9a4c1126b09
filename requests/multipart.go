package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const maxMultipartMemory = 32 << 20

var ErrInvalidFileMap = errors.New("invalid file map")

func parseMultipart(r *http.Request) (*Batch, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, fmt.Errorf("error parse multipart form data: %w", err)
	}

	batch, err := parseBody([]byte(r.Form.Get("operations")))
	if err != nil {
		return nil, fmt.Errorf("unable to parse request: %w", err)
	}

	var fileMap map[string][]string
	if err := json.Unmarshal([]byte(r.Form.Get("map")), &fileMap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileMap, err)
	}
	if len(fileMap) == 0 {
		return nil, fmt.Errorf("%w: file map is empty", ErrInvalidFileMap)
	}

	for key, paths := range fileMap {
		file, header, err := r.FormFile(key)
		if err != nil {
			return nil, fmt.Errorf("file with index %s not found: %w", key, err)
		}

		upload := &Upload{File: file, FileName: header.Filename}
		for _, path := range paths {
			if err := batch.injectFile(upload, path); err != nil {
				return nil, err
			}
		}
	}

	return batch, nil
}

// injectFile replaces the null placeholder at path, e.g. variables.input.files.2
// or 0.variables.file in batch mode, with the upload.
func (b *Batch) injectFile(upload *Upload, path string) error {
	parts := strings.Split(path, ".")

	idx := 0
	if b.IsBatchMode {
		var err error
		if idx, err = strconv.Atoi(parts[0]); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidFileMap, path)
		}
		parts = parts[1:]
	}
	if idx < 0 || idx >= len(b.Requests) {
		return fmt.Errorf("%w: no request with index %d", ErrInvalidFileMap, idx)
	}

	if len(parts) < 2 || parts[0] != "variables" {
		return fmt.Errorf("%w: %s", ErrInvalidFileMap, path)
	}

	var container interface{} = b.Requests[idx].Variables
	for i, part := range parts[1:] {
		last := i == len(parts)-2

		switch c := container.(type) {
		case map[string]interface{}:
			v, ok := c[part]
			if !ok {
				return fmt.Errorf("%w: key not found in variables: %s", ErrInvalidFileMap, part)
			}
			if last {
				if v != nil {
					return fmt.Errorf("%w: expected nil value at %s, got %v", ErrInvalidFileMap, path, v)
				}
				c[part] = upload
				return nil
			}
			container = v
		case []interface{}:
			index, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("%w: expected numeric index: %v", ErrInvalidFileMap, err)
			}
			if index < 0 || index >= len(c) {
				return fmt.Errorf("%w: file index %d out of bound %d", ErrInvalidFileMap, index, len(c))
			}
			if last {
				if c[index] != nil {
					return fmt.Errorf("%w: expected nil value at %s, got %v", ErrInvalidFileMap, path, c[index])
				}
				c[index] = upload
				return nil
			}
			container = c[index]
		default:
			return fmt.Errorf("%w: cannot step into %s", ErrInvalidFileMap, path)
		}
	}

	return nil
}
