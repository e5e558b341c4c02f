package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NoteFlow/backend/go/pkg/circuitbreaker"
	"NoteFlow/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const testSecret = "test-secret"

// fakeSessions is a canned SessionChecker standing in for the Redis-backed one.
type fakeSessions struct {
	active bool
	err    error
}

func (f *fakeSessions) HasSession(_ context.Context, _ uint) (bool, error) {
	return f.active, f.err
}

func newAuthedRouter(sessions SessionChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWTAuth(testSecret, sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetUint("userID")})
	})
	return r
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTAuthMissingHeader(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{active: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", w.Code)
	}
}

func TestJWTAuthMalformedHeader(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{active: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for malformed header, got %d", w.Code)
	}
}

func TestJWTAuthWrongSecret(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{active: true})
	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": 1,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong secret, got %d", w.Code)
	}
}

func TestJWTAuthExpiredToken(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{active: true})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": 1,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %d", w.Code)
	}
}

func TestJWTAuthValidToken(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{active: true})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": 7,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid token, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestJWTAuthRevokedSession(t *testing.T) {
	// The token itself is still within its lifetime, but the user has logged
	// out so the session mirror is gone. The middleware must reject it.
	r := newAuthedRouter(&fakeSessions{active: false})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": 7,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestJWTAuthSessionLookupError(t *testing.T) {
	r := newAuthedRouter(&fakeSessions{err: errors.New("redis down")})
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": 7,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the session lookup fails, got %d", w.Code)
	}
}

func TestRateLimitRejectsWithTooManyRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Capacity 2 with a negligible refill rate: the third request must be rejected.
	r.Use(RateLimit(ratelimiter.NewTokenBucket(0.0001, 2)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request should be rejected with 429, got %d", codes[2])
	}
}

func TestCircuitBreakOpensAfterServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	breaker := circuitbreaker.New(2, 1, time.Minute)
	r.Use(CircuitBreak(breaker))
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	// Two 5xx responses trip the breaker.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 before tripping, got %d", w.Code)
		}
	}

	if breaker.State() != circuitbreaker.Open {
		t.Fatalf("breaker should be open, got %s", breaker.State())
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("open breaker should short-circuit with 503, got %d", w.Code)
	}
}
