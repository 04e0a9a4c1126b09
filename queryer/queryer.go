package queryer

import (
	"context"

	"github.com/buildbuildio/fusion/requests"
)

// Queryer sends documents to one source. Query returns one response per
// request, in order; errors reported by the source stay inside the responses
// and only transport failures are returned as err.
type Queryer interface {
	Query(ctx context.Context, reqs []*requests.Request) ([]*requests.Response, error)
	// Subscribe starts a subscription and streams its events into resCh.
	// resCh is closed once the subscription ends or ctx is done.
	Subscribe(ctx context.Context, req *requests.Request, resCh chan<- *requests.Response) error
	Name() string
}
