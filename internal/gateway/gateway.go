// Package gateway abstracts the transport used to pull image files from an
// external camera-feed provider. Each source kind maps to one Gateway
// implementation; the scheduler and cursor logic never see protocol details.
package gateway

import (
	"context"
	"fmt"

	"github.com/perchwatch/server/internal/domain/sources"
)

// Entry is one item in a provider's listing. Filename is the de-duplication
// key; providers expose no stable content hash or monotonic modification
// time, so it is all we have.
type Entry struct {
	Filename string
	// FetchURL is the fully resolved address of the file.
	FetchURL string
}

// Gateway lists and fetches files for one source kind.
//
// List returns entries in the order the provider presents them; callers rely
// on that order for cursor arithmetic. Fetch retrieves a single entry's
// payload. Both honour ctx cancellation and deadlines.
type Gateway interface {
	List(ctx context.Context, src sources.Source) ([]Entry, error)
	Fetch(ctx context.Context, src sources.Source, entry Entry) ([]byte, error)
}

// Registry dispatches to a Gateway by source kind.
type Registry struct {
	gateways map[sources.Kind]Gateway
}

// NewRegistry builds a Registry over the given kind→gateway table.
func NewRegistry(gateways map[sources.Kind]Gateway) *Registry {
	return &Registry{gateways: gateways}
}

// ForSource returns the Gateway for src's kind. Unknown kinds surface as a
// ListingError so a misconfigured source fails its run the same way an
// unreachable one does.
func (r *Registry) ForSource(src sources.Source) (Gateway, error) {
	gw, ok := r.gateways[src.Kind]
	if !ok {
		return nil, &ListingError{
			SourceID: src.ID,
			Reason:   fmt.Sprintf("unsupported source kind %q", src.Kind),
		}
	}
	return gw, nil
}
