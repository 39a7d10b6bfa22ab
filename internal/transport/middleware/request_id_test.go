package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

func serveRequestID(t *testing.T, incoming string) (ctxID, headerID string) {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = ctxutil.RequestIDFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	if incoming != "" {
		req.Header.Set(RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	RequestID()(handler).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return ctxID, rec.Header().Get(RequestIDHeader)
}

func TestRequestID_ReuseIncoming(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "upstream-7f3a")
	assert.Equal(t, "upstream-7f3a", ctxID)
	assert.Equal(t, "upstream-7f3a", headerID)
}

func TestRequestID_GeneratesULID(t *testing.T) {
	ctxID, headerID := serveRequestID(t, "")
	require.NotEmpty(t, ctxID)
	assert.Equal(t, ctxID, headerID)
	_, err := ulid.ParseStrict(ctxID)
	assert.NoError(t, err)
}

func TestRequestID_ReplacesMalformed(t *testing.T) {
	tests := map[string]string{
		"too long":   strings.Repeat("a", maxRequestIDLen+1),
		"whitespace": "id with spaces",
		"control":    "id\x01",
	}
	for name, incoming := range tests {
		t.Run(name, func(t *testing.T) {
			ctxID, _ := serveRequestID(t, incoming)
			assert.NotEqual(t, incoming, ctxID)
			_, err := ulid.ParseStrict(ctxID)
			assert.NoError(t, err)
		})
	}
}

func TestRequestID_Monotonic(t *testing.T) {
	mw := RequestID()
	var ids []string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, ctxutil.RequestIDFromCtx(r.Context()))
	}))
	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}
