package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

func TestClient(t *testing.T) {
	cases := []struct {
		name       string
		trustProxy bool
		forwarded  string
		want       string
	}{
		{"remote addr", false, "", "192.0.2.1"},
		{"forwarded ignored", false, "203.0.113.9", "192.0.2.1"},
		{"forwarded trusted", true, "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"trusted but absent", true, "", "192.0.2.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got ctxutil.Client
			handler := Client(tc.trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ctxutil.ClientFromCtx(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", "n8n/1.0")
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got.Addr != tc.want {
				t.Errorf("addr = %q, want %q", got.Addr, tc.want)
			}
			if got.UserAgent != "n8n/1.0" {
				t.Errorf("user agent = %q", got.UserAgent)
			}
		})
	}
}
