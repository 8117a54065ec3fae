// Package feed drives infinite-scroll consumption of a paginated list
// endpoint: one fetch in flight at a time, entries deduplicated by ID, and
// a reset that supersedes whatever is still on the wire.
package feed

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/happy-carpenter/carpenter-go/gateway"
	"github.com/happy-carpenter/carpenter-go/internal/utils"
)

// Page is the server's paginated list shape.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Sender is the slice of the gateway the fetcher needs.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// Fetcher pulls successive pages of T from a list endpoint. IDs drive
// dedup: concurrent inserts on the backend shift page boundaries, so a
// later page can re-include an entry already loaded.
type Fetcher[T any] struct {
	send   Sender
	path   string
	idFunc func(T) string

	lock       sync.Mutex
	entries    []T
	seen       map[string]struct{}
	params     url.Values
	nextURL    string
	started    bool
	hasMore    bool
	inFlight   bool
	generation uint64
	err        error
}

// NewFetcher creates a fetcher over the list endpoint at path. idFunc
// extracts the dedup key from an entry.
func NewFetcher[T any](send Sender, path string, idFunc func(T) string) (*Fetcher[T], error) {
	if send == nil {
		return nil, errors.New("[NewFetcher] sender is required")
	}
	if idFunc == nil {
		return nil, errors.New("[NewFetcher] idFunc is required")
	}
	return &Fetcher[T]{
		send:    send,
		path:    path,
		idFunc:  idFunc,
		seen:    make(map[string]struct{}),
		hasMore: true,
	}, nil
}

// LoadNext fetches the next page. It is a no-op while a fetch is in flight
// or once the server has reported no further pages. A failed fetch keeps
// everything already loaded, records the error, and leaves hasMore alone so
// the caller can retry.
func (f *Fetcher[T]) LoadNext(ctx context.Context) error {
	f.lock.Lock()
	if f.inFlight || !f.hasMore {
		f.lock.Unlock()
		return nil
	}
	f.inFlight = true
	generation := f.generation
	req := f.pageRequest()
	f.lock.Unlock()

	resp, err := f.send.Send(ctx, req)

	f.lock.Lock()
	defer f.lock.Unlock()

	if generation != f.generation {
		// A reset superseded this fetch while it was on the wire. The
		// result belongs to a cursor that no longer exists; drop it.
		log.Debug().Str("path", f.path).Msg("feed: discarding superseded page")
		return nil
	}
	f.inFlight = false

	if err != nil {
		f.err = err
		return errors.Wrap(err, "[Fetcher.LoadNext] page fetch")
	}

	var page Page[T]
	if err := resp.DecodeJSON(&page); err != nil {
		f.err = err
		return errors.Wrap(err, "[Fetcher.LoadNext] decode page")
	}

	f.err = nil
	f.started = true
	for _, entry := range page.Results {
		id := f.idFunc(entry)
		if _, dup := f.seen[id]; dup {
			continue
		}
		f.seen[id] = struct{}{}
		f.entries = append(f.entries, entry)
	}
	f.nextURL = utils.Value(page.Next)
	f.hasMore = f.nextURL != ""
	return nil
}

// Reset discards all loaded state, bumps the cursor generation so any
// in-flight result dies on arrival, and fetches page one under the new
// filter parameters.
func (f *Fetcher[T]) Reset(ctx context.Context, params url.Values) error {
	f.lock.Lock()
	f.generation++
	f.entries = nil
	f.seen = make(map[string]struct{})
	f.params = params
	f.nextURL = ""
	f.started = false
	f.hasMore = true
	f.inFlight = false
	f.err = nil
	f.lock.Unlock()

	return f.LoadNext(ctx)
}

// SetParams seeds the filter parameters used for the first page without
// issuing a fetch. After the first LoadNext, use Reset to change them.
func (f *Fetcher[T]) SetParams(params url.Values) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.params = params
}

// Entries returns the loaded entries in server-provided order.
func (f *Fetcher[T]) Entries() []T {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]T, len(f.entries))
	copy(out, f.entries)
	return out
}

// HasMore reports whether the server has indicated further pages.
func (f *Fetcher[T]) HasMore() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.hasMore
}

// Err returns the error recorded by the most recent failed fetch, cleared
// by the next successful one.
func (f *Fetcher[T]) Err() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.err
}

// pageRequest builds the request for the current cursor position. Callers
// hold f.lock.
func (f *Fetcher[T]) pageRequest() gateway.Request {
	if f.started && f.nextURL != "" {
		return gateway.Request{Method: "GET", Path: f.nextURL}
	}
	return gateway.Request{Method: "GET", Path: f.path, Query: f.params}
}
