package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func router(keys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(keys))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		header string
		want   int
	}{
		{"disabled", nil, "", http.StatusNoContent},
		{"blank keys disable", []string{""}, "", http.StatusNoContent},
		{"missing", []string{"kiosk-a"}, "", http.StatusUnauthorized},
		{"wrong", []string{"kiosk-a"}, "kiosk-b", http.StatusForbidden},
		{"first key", []string{"kiosk-a", "kiosk-b"}, "kiosk-a", http.StatusNoContent},
		{"second key", []string{"kiosk-a", "kiosk-b"}, "kiosk-b", http.StatusNoContent},
		{"prefix only", []string{"kiosk-a"}, "kiosk", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(headerName, tc.header)
			}
			w := httptest.NewRecorder()
			router(tc.keys).ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
