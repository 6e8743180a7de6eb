package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
)

func newCORSEcho(origins []string) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSWithConfig(CORSConfig(origins)))
	e.POST("/api/leads/", func(c echo.Context) error {
		return c.String(http.StatusOK, "RECEIVED")
	})
	return e
}

func TestCORS_OpenWhenNoOriginsConfigured(t *testing.T) {
	e := newCORSEcho(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/leads/", nil)
	req.Header.Set("Origin", "https://partner.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	e := newCORSEcho([]string{"https://dashboard.example.com"})

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed", "https://dashboard.example.com", "https://dashboard.example.com"},
		{"blocked", "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/leads/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_PreflightAllowsPatch(t *testing.T) {
	e := newCORSEcho([]string{"https://dashboard.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/leads/", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSConfig_Values(t *testing.T) {
	open := CORSConfig(nil)
	assert.Equal(t, []string{"*"}, open.AllowOrigins)
	assert.False(t, open.AllowCredentials)
	assert.Contains(t, open.ExposeHeaders, "Content-Disposition")

	restricted := CORSConfig([]string{"https://a.example.com"})
	assert.Equal(t, []string{"https://a.example.com"}, restricted.AllowOrigins)
	assert.True(t, restricted.AllowCredentials)
}
