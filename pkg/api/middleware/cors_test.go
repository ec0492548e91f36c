package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orsa-go/orsa/config"
)

func TestCORS(t *testing.T) {
	cfg := config.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"http://console.local"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	tests := []struct {
		name       string
		cfg        config.CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", cfg, http.MethodGet, "http://console.local", false, http.StatusOK, "http://console.local"},
		{"unknown origin", cfg, http.MethodGet, "http://evil.local", false, http.StatusOK, ""},
		{"no origin", cfg, http.MethodGet, "", false, http.StatusOK, ""},
		{"preflight", cfg, http.MethodOptions, "http://console.local", true, http.StatusNoContent, "http://console.local"},
		{"disabled", config.CORSConfig{AllowedOrigins: []string{"*"}}, http.MethodGet, "http://console.local", false, http.StatusOK, ""},
		{"wildcard", config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}}, http.MethodGet, "http://any.local", false, http.StatusOK, "http://any.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/sagas", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, !tt.preflight, called)
			if tt.preflight {
				assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
