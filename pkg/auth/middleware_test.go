package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func guarded(t *testing.T, ks *KeyStore, wantCaller string) http.Handler {
	t.Helper()
	return RequireKey(ks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := CallerFromContext(r.Context()); got != wantCaller {
			t.Errorf("expected caller %q, got %q", wantCaller, got)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequireKey(t *testing.T) {
	ks := NewKeyStore("instantly:sk-abc")

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"header", "/instantly-webhook", map[string]string{"X-API-Key": "sk-abc"}, http.StatusOK},
		{"bearer", "/instantly-webhook", map[string]string{"Authorization": "Bearer sk-abc"}, http.StatusOK},
		{"query", "/instantly-webhook?key=sk-abc", nil, http.StatusOK},
		{"wrong key", "/instantly-webhook", map[string]string{"X-API-Key": "bad"}, http.StatusUnauthorized},
		{"missing", "/instantly-webhook", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			guarded(t, ks, "instantly").ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestRequireKey_DisabledPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/instantly-webhook", nil)
	rr := httptest.NewRecorder()
	guarded(t, NewKeyStore(""), "").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
