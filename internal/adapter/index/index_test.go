package index

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewHashEmbedder(64)

	a, err := e.Embed(ctx, "Quarterly revenue report")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "quarterly   REVENUE report")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	c, err := e.Embed(ctx, "employee vacation policy")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	t.Parallel()
	v, err := NewHashEmbedder(8).Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestIndexer_IndexIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)
	ix := New(testLogger(), NewHashEmbedder(32), store, 1000)
	id := uuid.New()

	h1, err := ix.Index(ctx, id, "first version", map[string]any{"category": "Report"})
	require.NoError(t, err)
	h2, err := ix.Index(ctx, id, "second version", map[string]any{"category": "Invoice"})
	require.NoError(t, err)

	assert.Equal(t, "sqlite:"+id.String(), h1)
	assert.Equal(t, h1, h2)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := ix.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", got.Attributes["category"])
	assert.Equal(t, "blake3-hash", got.Embedder)

	want, _ := NewHashEmbedder(32).Embed(ctx, "second version")
	assert.Equal(t, want, got.Vector)
}

func TestIndexer_RemoveAndMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := New(testLogger(), NewHashEmbedder(16), openTestStore(t), 0)
	id := uuid.New()

	_, err := ix.Index(ctx, id, "text", nil)
	require.NoError(t, err)
	require.NoError(t, ix.Remove(ctx, id))
	require.NoError(t, ix.Remove(ctx, id))

	_, err = ix.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexer_PayloadTooLarge(t *testing.T) {
	t.Parallel()
	ix := New(testLogger(), NewHashEmbedder(16), openTestStore(t), 5)

	_, err := ix.Index(context.Background(), uuid.New(), "too long", nil)
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

func TestStore_SearchRanksByCosine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	for _, e := range []Entry{
		{DocumentID: "a", Vector: []float32{1, 0, 0}, Attributes: map[string]any{"category": "Report"}},
		{DocumentID: "b", Vector: []float32{1, 1, 0}},
		{DocumentID: "c", Vector: []float32{0, 0, 1}},
		{DocumentID: "d", Vector: []float32{0, 0, 0}},
		{DocumentID: "other-embedder", Vector: []float32{1, 0}},
	} {
		e.Embedder = "test"
		require.NoError(t, store.Upsert(ctx, e))
	}

	hits, err := store.Search(ctx, []float32{2, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].DocumentID, hits[1].DocumentID, hits[2].DocumentID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 1/math.Sqrt2, hits[1].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
	assert.Equal(t, "Report", hits[0].Attributes["category"])

	top, err := store.Search(ctx, []float32{2, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "a", top[0].DocumentID)

	none, err := store.Search(ctx, []float32{0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.Search(ctx, []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIndexer_Search(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ix := New(testLogger(), NewHashEmbedder(64), openTestStore(t), 100)

	report, vacation := uuid.New(), uuid.New()
	_, err := ix.Index(ctx, report, "Quarterly revenue report", map[string]any{"title": "Q1"})
	require.NoError(t, err)
	_, err = ix.Index(ctx, vacation, "employee vacation policy", nil)
	require.NoError(t, err)

	hits, err := ix.Search(ctx, "  quarterly revenue REPORT ", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, report, hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "Q1", hits[0].Attributes["title"])
	for _, h := range hits[1:] {
		assert.Less(t, h.Score, hits[0].Score)
	}

	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", strings.Repeat("x", 101)},
	}
	for _, tt := range tests {
		_, err := ix.Search(ctx, tt.query, 5)
		assert.ErrorIs(t, err, domain.ErrValidation, tt.name)
	}
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()
	in := []float32{0, -1.5, float32(math.Pi), 1e-9}
	out, err := decodeVector(encodeVector(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}

func TestHTTPEmbedder(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		gotAuth  string
		gotModel string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		gotAuth, gotModel = r.Header.Get("Authorization"), req.Model
		mu.Unlock()
		switch {
		case strings.Contains(req.Input[0], "huge"):
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		case strings.Contains(req.Input[0], "down"):
			w.WriteHeader(http.StatusBadGateway)
		case strings.Contains(req.Input[0], "short"):
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1]}]}`))
		default:
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
		}
	}))
	t.Cleanup(srv.Close)

	e := NewHTTPEmbedder(testLogger(), srv.URL+"/v1", "secret", "test-model", 3, 0)
	ctx := context.Background()

	vec, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	mu.Lock()
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "test-model", gotModel)
	mu.Unlock()

	tests := []struct {
		text    string
		wantErr error
	}{
		{"huge", domain.ErrPayloadTooLarge},
		{"down", domain.ErrIndexUnavailable},
		{"short", domain.ErrIndexUnavailable},
	}
	for _, tt := range tests {
		_, err := e.Embed(ctx, tt.text)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Embed(%q) err = %v, want %v", tt.text, err, tt.wantErr)
		}
	}
}
