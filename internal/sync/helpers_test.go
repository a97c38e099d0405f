package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/perchwatch/server/internal/domain/sources"
	"github.com/perchwatch/server/internal/gateway"
)

// fakeRepo is an in-memory sources.Repository.
type fakeRepo struct {
	mu      stdsync.Mutex
	sources map[string]*sources.Source
	// updateErr, when set, is returned from UpdateCursor.
	updateErr error
}

func newFakeRepo(srcs ...sources.Source) *fakeRepo {
	r := &fakeRepo{sources: make(map[string]*sources.Source)}
	for i := range srcs {
		src := srcs[i]
		r.sources[src.ID] = &src
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, params sources.CreateParams) (*sources.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := &sources.Source{
		ID:          ulid.Make().String(),
		Name:        params.Name,
		BaseURL:     params.BaseURL,
		Kind:        params.Kind,
		AuthMode:    params.AuthMode,
		Credentials: params.Credentials,
		Enabled:     params.Enabled,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.sources[src.ID] = src
	return src, nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*sources.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return nil, sources.ErrNotFound
	}
	copied := *src
	return &copied, nil
}

func (r *fakeRepo) List(_ context.Context, enabled *bool) ([]sources.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sources.Source
	for _, src := range r.sources {
		if enabled == nil || src.Enabled == *enabled {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListEnabled(ctx context.Context) ([]sources.Source, error) {
	enabled := true
	return r.List(ctx, &enabled)
}

func (r *fakeRepo) SetEnabled(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return sources.ErrNotFound
	}
	src.Enabled = enabled
	return nil
}

func (r *fakeRepo) UpdateCursor(_ context.Context, id string, cursor string, pulledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	src, ok := r.sources[id]
	if !ok {
		return sources.ErrNotFound
	}
	src.Cursor = &cursor
	src.LastPulledAt = &pulledAt
	return nil
}

func (r *fakeRepo) cursorOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.sources[id]
	if src == nil || src.Cursor == nil {
		return ""
	}
	return *src.Cursor
}

func (r *fakeRepo) lastPulledOf(id string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources[id].LastPulledAt
}

// fakeGateway serves scripted listings and payloads, with optional failure
// injection and a per-source overlap detector for serialization tests.
type fakeGateway struct {
	mu       stdsync.Mutex
	listings map[string][]gateway.Entry
	listErr  map[string]error
	fetchErr map[string]error // keyed by filename
	// fetchDelay widens the window in which overlapping runs would collide.
	fetchDelay time.Duration

	fetches  []string // "sourceID/filename" in call order
	inFlight map[string]int
	overlaps int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		listings: make(map[string][]gateway.Entry),
		listErr:  make(map[string]error),
		fetchErr: make(map[string]error),
		inFlight: make(map[string]int),
	}
}

func (g *fakeGateway) setListing(sourceID string, filenames ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := make([]gateway.Entry, len(filenames))
	for i, name := range filenames {
		entries[i] = gateway.Entry{Filename: name, FetchURL: "http://cam.example/" + name}
	}
	g.listings[sourceID] = entries
}

func (g *fakeGateway) List(_ context.Context, src sources.Source) ([]gateway.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.listErr[src.ID]; err != nil {
		return nil, err
	}
	return g.listings[src.ID], nil
}

func (g *fakeGateway) Fetch(_ context.Context, src sources.Source, entry gateway.Entry) ([]byte, error) {
	g.mu.Lock()
	g.fetches = append(g.fetches, src.ID+"/"+entry.Filename)
	g.inFlight[src.ID]++
	if g.inFlight[src.ID] > 1 {
		g.overlaps++
	}
	delay := g.fetchDelay
	err := g.fetchErr[entry.Filename]
	g.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	g.mu.Lock()
	g.inFlight[src.ID]--
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return []byte("payload:" + entry.Filename), nil
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fetches)
}

func (g *fakeGateway) overlapCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.overlaps
}

// fakeSink records ingestions and rejects scripted filenames.
type fakeSink struct {
	mu       stdsync.Mutex
	rejected map[string]string // filename -> reason
	ingested []string          // "sourceID/filename" in call order
}

func newFakeSink() *fakeSink {
	return &fakeSink{rejected: make(map[string]string)}
}

func (s *fakeSink) Ingest(_ context.Context, sourceID, filename string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reason, ok := s.rejected[filename]; ok {
		return &Rejection{SourceID: sourceID, Filename: filename, Reason: reason}
	}
	s.ingested = append(s.ingested, sourceID+"/"+filename)
	return nil
}

func (s *fakeSink) ingestedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ingested)
}

func testSrc(id, name string, cursor string) sources.Source {
	src := sources.Source{
		ID:      id,
		Name:    name,
		BaseURL: fmt.Sprintf("http://%s.example/snapshots/", name),
		Kind:    sources.KindHTTPIndex,
		Enabled: true,
	}
	if cursor != "" {
		src.Cursor = &cursor
	}
	return src
}
