package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

func TestChain_Order(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}

	Chain(trace("outer"), trace("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}, order)
}

func TestChain_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	Chain()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

// The API stack: the access log must see request id, client and the 500
// written by Recovery.
func TestChain_APIStack(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	user := uuid.New()
	validator := &tokenValidatorMock{
		ValidateTokenFunc: func(ctx context.Context, token string) (uuid.UUID, error) { return user, nil },
	}

	stack := Chain(
		RequestID(),
		Client(false),
		Logger(logger),
		Recovery(logger),
		Auth(validator),
	)
	handler := stack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ctxutil.UserIDFromCtx(r.Context())
		require.True(t, ok)
		require.Equal(t, user, id)
		panic("classifier exploded")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/documents/x/retry", nil)
	req.RemoteAddr = "198.51.100.4:4000"
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set(RequestIDHeader, "trace-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "trace-1", rec.Header().Get(RequestIDHeader))

	var access string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"msg":"http.request"`) {
			access = line
		}
	}
	require.NotEmpty(t, access, "no access log line in %q", buf.String())
	assert.Contains(t, access, `"status":500`)
	assert.Contains(t, access, `"request_id":"trace-1"`)
	assert.Contains(t, access, `"client":"198.51.100.4"`)
}
