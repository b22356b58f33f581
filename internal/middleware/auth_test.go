package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"polescan/internal/config"
)

func protectedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{APIKey: "secret-key"}
	handler := AuthMiddleware(protectedHandler(), cfg)

	tests := []struct {
		name       string
		path       string
		cookie     *http.Cookie
		apiKey     string
		wantStatus int
	}{
		{"login page is public", "/auth/login", nil, "", http.StatusOK},
		{"api without auth", "/api/pipeline/status", nil, "", http.StatusUnauthorized},
		{"page without auth redirects", "/map", nil, "", http.StatusSeeOther},
		{"valid cookie", "/api/pipeline/status", &http.Cookie{Name: "authenticated", Value: "true"}, "", http.StatusOK},
		{"forged cookie", "/api/pipeline/status", &http.Cookie{Name: "authenticated", Value: "yes"}, "", http.StatusUnauthorized},
		{"valid api key", "/api/pipeline/run", nil, "secret-key", http.StatusOK},
		{"wrong api key", "/api/pipeline/run", nil, "other", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, expected %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddleware_NoAPIKeyConfigured(t *testing.T) {
	cfg := &config.Config{}
	handler := AuthMiddleware(protectedHandler(), cfg)

	// With no key configured the header must not open a back door.
	req := httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil)
	req.Header.Set("X-API-Key", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", rec.Code)
	}
}
