package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func engine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.OPTIONS("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		method     string
		origin     string
		wantOrigin string
		wantCode   int
	}{
		{"no origin", "prod", http.MethodGet, "", "", http.StatusOK},
		{"dev allows any", "dev", http.MethodGet, "http://elsewhere.test", "http://elsewhere.test", http.StatusOK},
		{"prod same host", "prod", http.MethodGet, "http://example.com", "http://example.com", http.StatusOK},
		{"prod foreign host", "prod", http.MethodGet, "http://evil.test", "", http.StatusOK},
		{"prod lookalike host", "prod", http.MethodGet, "http://example.com.evil.test", "", http.StatusOK},
		{"preflight", "dev", http.MethodOptions, "http://elsewhere.test", "http://elsewhere.test", http.StatusNoContent},
	}
	r := map[string]*gin.Engine{"dev": engine(CORS("dev")), "prod": engine(CORS("prod"))}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://example.com/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r[tt.env].ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	defer rl.Stop()
	r := engine(rl.Middleware())

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, code)
		}
	}
	if code := do("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other ip = %d, want 200", code)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, time.Minute)
	defer rl.Stop()
	rl.Allow("a")
	rl.Allow("b")
	if got := rl.size(); got != 2 {
		t.Fatalf("size() = %d, want 2", got)
	}
	rl.sweep(time.Now())
	if got := rl.size(); got != 2 {
		t.Errorf("size() after fresh sweep = %d, want 2", got)
	}
	rl.sweep(time.Now().Add(2 * time.Minute))
	if got := rl.size(); got != 0 {
		t.Errorf("size() after idle sweep = %d, want 0", got)
	}
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct{ in, want string }{
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:443", "::1"},
		{"unix", "unix"},
	}
	for _, tt := range tests {
		if got := clientIP(tt.in); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
