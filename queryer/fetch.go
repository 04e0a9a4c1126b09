package queryer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/buildbuildio/fusion/requests"
	"go.uber.org/zap"
)

var (
	ErrBadStatus      = errors.New("response was not successful")
	ErrBatchMismatch  = errors.New("source returned unexpected number of responses")
	ErrMalformedReply = errors.New("malformed source response")
)

func (q *MultiOpQueryer) post(ctx context.Context, payload []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	for _, mdware := range q.mdwares {
		if err := mdware(req); err != nil {
			return nil, err
		}
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		q.logger.Debug("source responded with bad status",
			zap.String("source", q.name),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return body, fmt.Errorf("%w: %s returned status code %d", ErrBadStatus, q.name, resp.StatusCode)
	}

	return body, nil
}

// fetch sends inputs as a single JSON array.
func (q *MultiOpQueryer) fetch(ctx context.Context, inputs []*requests.Request) ([]*requests.Response, error) {
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, err
	}

	body, err := q.post(ctx, payload, "application/json")
	if err != nil {
		return nil, err
	}

	var results []*requests.Response
	if requests.IsBatchMode(body) {
		err = json.Unmarshal(body, &results)
	} else {
		// some sources answer a one element batch with a bare object
		var single requests.Response
		err = json.Unmarshal(body, &single)
		results = []*requests.Response{&single}
	}
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrMalformedReply, q.name, err)
	}

	if len(results) != len(inputs) {
		return nil, fmt.Errorf("%w: %s sent %d for %d requests", ErrBatchMismatch, q.name, len(results), len(inputs))
	}

	return results, nil
}

// fetchFile sends input as a multipart request when its variables carry uploads.
// A nil response means there was nothing to upload.
func (q *MultiOpQueryer) fetchFile(ctx context.Context, input *requests.Request) (*requests.Response, error) {
	uploads := extractFiles(input)
	if uploads.Empty() {
		return nil, nil
	}

	operations, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	payload, contentType, err := prepareMultipart(operations, uploads)
	if err != nil {
		return nil, err
	}

	body, err := q.post(ctx, payload, contentType)
	if err != nil {
		return nil, err
	}

	var resp requests.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrMalformedReply, q.name, err)
	}

	return &resp, nil
}
