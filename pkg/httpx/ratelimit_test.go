package httpx_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func jsonRequestFrom(ip, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = ip + ":12345"
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(requestFrom("192.168.1.1")))
	})

	t.Run("ignores forwarding headers on its own", func(t *testing.T) {
		req := requestFrom("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses the address resolved by TrustProxies", func(t *testing.T) {
		trusted, err := httpx.ParseTrustedProxies([]string{"192.168.1.1"})
		require.NoError(t, err)

		var got string
		h := httpx.TrustProxies(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = httpx.IPKeyExtractor(r)
		}))

		req := requestFrom("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		serve(h, req)
		require.Equal(t, "203.0.113.1", got)
	})
}

func TestRateLimitByJSONFieldIgnoresSourceAddress(t *testing.T) {
	h := httpx.Chain(okHandler,
		httpx.TrustProxies(nil),
		httpx.RateLimitByJSONField(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}, "email"),
	)

	codes := map[int]int{}
	for i := range 20 {
		req := jsonRequestFrom("10.0.0.1", `{"email":"victim@example.com"}`)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		codes[serve(h, req).Code]++
	}
	require.Equal(t, 3, codes[http.StatusOK])
	require.Equal(t, 17, codes[http.StatusTooManyRequests])
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	extract := httpx.JSONFieldKeyExtractor("email")

	t.Run("reads field and restores body", func(t *testing.T) {
		body := `{"email":"  Alice@Example.com ","password":"x"}`
		req := jsonRequestFrom("10.0.0.1", body)

		require.Equal(t, "alice@example.com", extract(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest), "downstream handler must still see the full body")
	})

	t.Run("missing field", func(t *testing.T) {
		require.Empty(t, extract(jsonRequestFrom("10.0.0.1", `{"code":"123456"}`)))
	})

	t.Run("non-string field", func(t *testing.T) {
		require.Empty(t, extract(jsonRequestFrom("10.0.0.1", `{"email":42}`)))
	})

	t.Run("invalid json", func(t *testing.T) {
		require.Empty(t, extract(jsonRequestFrom("10.0.0.1", `email=alice`)))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	extractor := httpx.CompositeKeyExtractor(":",
		httpx.IPKeyExtractor,
		httpx.JSONFieldKeyExtractor("email"),
	)

	t.Run("combines multiple extractors", func(t *testing.T) {
		require.Equal(t, "192.168.1.1:alice@example.com", extractor(jsonRequestFrom("192.168.1.1", `{"email":"alice@example.com"}`)))
	})

	t.Run("skips empty values", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", extractor(jsonRequestFrom("192.168.1.1", `{}`)))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows burst then blocks", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1")).Code, "request %d should succeed", i+1)
		}

		rec := serve(h, requestFrom("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		})(okHandler)

		require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1")).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, requestFrom("192.168.1.1")).Code)
		require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.2")).Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1")).Code)
		}
	})

	t.Run("zero config disables limiting", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{})(okHandler)
		for range 10 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1")).Code)
		}
	})
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	var seen []string
	h := httpx.RateLimitByIPAndJSONField(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	}, "email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, string(b))
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, jsonRequestFrom("10.0.0.1", `{"email":"alice@example.com"}`)).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, serve(h, jsonRequestFrom("10.0.0.1", `{"email":"ALICE@example.com"}`)).Code)
	require.Equal(t, http.StatusOK, serve(h, jsonRequestFrom("10.0.0.1", `{"email":"bob@example.com"}`)).Code)

	require.Len(t, seen, 3)
	require.Equal(t, `{"email":"alice@example.com"}`, seen[0])
}

func TestParseRateLimitFromEnv(t *testing.T) {
	base := httpx.DefaultRateLimits()

	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_STRICT_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_STRICT_BURST", "not-a-number")
	t.Setenv("RATELIMIT_MODERATE_REQUESTS", "-4")

	got := httpx.RateLimitsFromEnv(base)
	require.Equal(t, 1000, got.Strict.RequestsPerWindow)
	require.Equal(t, 30*time.Second, got.Strict.Window)
	require.Equal(t, base.Strict.Burst, got.Strict.Burst, "invalid values keep the default")
	require.Equal(t, base.Moderate, got.Moderate, "negative values keep the default")
	require.Equal(t, base.Lenient, got.Lenient)
}
