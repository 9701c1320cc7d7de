package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys", nil, "/v1/index", "", http.StatusOK},
		{"only empty keys", []string{"", ""}, "/v1/index", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/v1/index", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/v1/index", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty token", []string{"secret"}, "/v1/index", "Bearer   ", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, "/v1/namespaces/acme/search", "Bearer wrong", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, "/v1/namespaces/acme/search", "Bearer secret", http.StatusOK},
		{"lowercase scheme", []string{"secret"}, "/v1/index", "bearer secret", http.StatusOK},
		{"second key", []string{"k1", "k2"}, "/v1/index", "Bearer k2", http.StatusOK},
		{"key prefix is not a match", []string{"secret"}, "/v1/index", "Bearer secre", http.StatusUnauthorized},
		{"health open", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics open", []string{"secret"}, "/metrics", "", http.StatusOK},
		{"version open", []string{"secret"}, "/version", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			BearerAuthMiddleware(tt.keys)(ok).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if body.Code != CodeUnauthorized {
				t.Errorf("code = %s, want %s", body.Code, CodeUnauthorized)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tok, problem := bearerToken("Bearer  abc ")
	if problem != "" || tok != "abc" {
		t.Errorf("bearerToken = %q, %q", tok, problem)
	}
	if _, problem := bearerToken("Token abc"); problem == "" {
		t.Error("expected scheme problem")
	}
}
