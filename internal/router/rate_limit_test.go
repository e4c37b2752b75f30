package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndModel(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var key string
	r := gin.New()
	r.POST("/api/v1/:model/:action", func(c *gin.Context) {
		key = KeyByIPAndModel(c)
	})
	r.POST("/other", func(c *gin.Context) {
		key = KeyByIPAndModel(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/Products/findMany", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	r.ServeHTTP(httptest.NewRecorder(), req)
	if key != "products|1.2.3.4" {
		t.Fatalf("key want products|1.2.3.4 got %s", key)
	}

	req = httptest.NewRequest(http.MethodPost, "/other", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	r.ServeHTTP(httptest.NewRecorder(), req)
	if key != "1.2.3.4" {
		t.Fatalf("key without model want 1.2.3.4 got %s", key)
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status want 200 got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("expected handler response body, got %s", w.Body.String())
		}
	}
}

func TestRateLimitRuleEnabled(t *testing.T) {
	if (RateLimitRule{WindowSeconds: 60}).Enabled() {
		t.Fatalf("rule without max requests should be disabled")
	}
	if !(RateLimitRule{WindowSeconds: 60, MaxRequests: 10}).Enabled() {
		t.Fatalf("rule should be enabled")
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  int64
		ok    bool
	}{
		{name: "int64", input: int64(10), want: 10, ok: true},
		{name: "int", input: int(11), want: 11, ok: true},
		{name: "float64", input: float64(13.9), want: 13, ok: true},
		{name: "string", input: "bad", want: 0, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInt64(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok want %v got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("value want %d got %d", tc.want, got)
			}
		})
	}
}
