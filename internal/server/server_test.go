package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/docq/internal/engine"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/pipeline"
	"github.com/alfredjeanlab/docq/internal/store"
)

// mockStore is an in-memory store.Store that runs pipelines through the
// real engine. Documents are round-tripped through JSON like the Postgres
// store does.
type mockStore struct {
	mu      sync.Mutex
	docs    map[string][]model.Document
	queries map[string]*model.NamedQuery
	now     time.Time

	// err, when non-nil, is returned by every document operation.
	err error
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:    make(map[string][]model.Document),
		queries: make(map[string]*model.NamedQuery),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func roundTrip(doc model.Document) model.Document {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	var out model.Document
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func (m *mockStore) snapshot(collection string) []model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, len(m.docs[collection]))
	for i, d := range m.docs[collection] {
		out[i] = roundTrip(d)
	}
	return out
}

func (m *mockStore) InsertDocument(_ context.Context, collection string, doc model.Document) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs[collection] {
		if d.ID() == doc.ID() {
			return store.ErrConflict
		}
	}
	m.docs[collection] = append(m.docs[collection], roundTrip(doc))
	return nil
}

func (m *mockStore) GetDocument(_ context.Context, collection, id string) (model.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs[collection] {
		if d.ID() == id {
			return roundTrip(d), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) UpdateDocument(_ context.Context, collection, id string, doc model.Document) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs[collection] {
		if d.ID() == id {
			m.docs[collection][i] = roundTrip(doc)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) DeleteDocument(_ context.Context, collection, id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.docs[collection]
	for i, d := range docs {
		if d.ID() == id {
			m.docs[collection] = slices.Delete(docs, i, i+1)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) Aggregate(_ context.Context, collection string, stages []map[string]any) ([]model.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return engine.Run(m.snapshot(collection), stages)
}

func (m *mockStore) Count(_ context.Context, collection string, filter map[string]any) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return engine.Count(m.snapshot(collection), filter)
}

func (m *mockStore) RegisterQuery(_ context.Context, q *model.NamedQuery) (*model.NamedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(time.Second)
	stored := *q
	stored.CreatedAt = m.now
	stored.UpdatedAt = m.now
	if prev, ok := m.queries[q.Name]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	m.queries[q.Name] = &stored
	out := stored
	return &out, nil
}

func (m *mockStore) GetQuery(_ context.Context, name string) (*model.NamedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *q
	return &out, nil
}

func (m *mockStore) DeleteQuery(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[name]; !ok {
		return store.ErrNotFound
	}
	delete(m.queries, name)
	return nil
}

func (m *mockStore) ExportQueries(_ context.Context) ([]*model.NamedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.NamedQuery
	for _, q := range m.queries {
		c := *q
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *model.NamedQuery) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *mockStore) ListQueries(ctx context.Context) ([]*model.NamedQuery, error) {
	qs, err := m.ExportQueries(ctx)
	for _, q := range qs {
		q.Pipeline = nil
	}
	return qs, err
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

// recordingPublisher captures published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.topics)
}

type testEnv struct {
	srv     *Server
	store   *mockStore
	pub     *recordingPublisher
	handler http.Handler
}

// newTestServer returns a server with auth disabled (every request acts as
// the service principal) and the default ledger, unless opts say otherwise.
func newTestServer(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	ms := newMockStore()
	pub := &recordingPublisher{}
	o := Options{
		Publisher: pub,
		Ledger:    pipeline.DefaultLedger(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	srv := New(ms, o)
	return &testEnv{srv: srv, store: ms, pub: pub, handler: srv.NewHTTPHandler()}
}

// do performs an HTTP request against the handler. token may be empty.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}
