package queryer

import (
	"context"
	"net/http"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/requests"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// RequestMiddleware are functions can be passed to Queryer to affect its internal behavior
type RequestMiddleware func(*http.Request) error

// MultiOpQueryer sends every call to Query as JSON batches of at most
// maxBatchSize requests to a single source.
type MultiOpQueryer struct {
	name    string
	url     string
	client  *http.Client
	mdwares []RequestMiddleware
	logger  *zap.Logger

	maxBatchSize int
}

var _ Queryer = &MultiOpQueryer{}

// NewMultiOpQueryer returns a MultiOpQueryer for the source name served at url.
// A maxBatchSize below one disables chunking.
func NewMultiOpQueryer(name, url string, maxBatchSize int) *MultiOpQueryer {
	return &MultiOpQueryer{
		name:         name,
		url:          url,
		client:       &http.Client{},
		logger:       zap.NewNop(),
		maxBatchSize: maxBatchSize,
	}
}

// WithMiddlewares lets the user assign middlewares to the queryer
func (q *MultiOpQueryer) WithMiddlewares(mwares []RequestMiddleware) *MultiOpQueryer {
	q.mdwares = mwares
	return q
}

// WithHTTPClient lets the user configure the client to use when making network requests
func (q *MultiOpQueryer) WithHTTPClient(client *http.Client) *MultiOpQueryer {
	q.client = client
	return q
}

func (q *MultiOpQueryer) WithLogger(logger *zap.Logger) *MultiOpQueryer {
	q.logger = logger.With(zap.String("source", q.name))
	return q
}

func (q *MultiOpQueryer) Name() string {
	return q.name
}

func (q *MultiOpQueryer) URL() string {
	return q.url
}

func (q *MultiOpQueryer) Query(ctx context.Context, inputs []*requests.Request) ([]*requests.Response, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	if q.maxBatchSize < 1 || len(inputs) <= q.maxBatchSize {
		return q.queryBatch(ctx, inputs)
	}

	chunks, errs := common.ParallelMap(ctx, lo.Chunk(inputs, q.maxBatchSize), 0, q.queryBatch)
	if errs != nil {
		return nil, errs
	}

	return lo.Flatten(chunks), nil
}

// queryBatch executes provided inputs in single response. Requests carrying
// uploads are sent separately as multipart requests.
func (q *MultiOpQueryer) queryBatch(ctx context.Context, inputs []*requests.Request) ([]*requests.Response, error) {
	results := make([]*requests.Response, len(inputs))

	var (
		toFetchIndexes []int
		inputsToFetch  []*requests.Request
	)

	for i, input := range inputs {
		resp, err := q.fetchFile(ctx, input)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			inputsToFetch = append(inputsToFetch, input)
			toFetchIndexes = append(toFetchIndexes, i)
			continue
		}
		results[i] = resp
	}

	if len(inputsToFetch) == 0 {
		return results, nil
	}

	q.logger.Debug("sending batch", zap.Int("size", len(inputsToFetch)))

	resps, err := q.fetch(ctx, inputsToFetch)
	if err != nil {
		return nil, err
	}

	for i, resp := range resps {
		results[toFetchIndexes[i]] = resp
	}

	return results, nil
}
