package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mark-hil/chat-app/internal/server/middleware"
	"github.com/Mark-hil/chat-app/pkg/chat"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func signToken(t *testing.T, subject, username, secret string) string {
	t.Helper()
	claims := middleware.SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// identityChain wires metadata and identity resolution the way the server
// does and captures what the innermost handler observes.
func identityChain(captured *chat.Identity) http.Handler {
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqMeta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
			*captured = reqMeta.Identity
		}
		w.WriteHeader(http.StatusOK)
	})
	return middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewIdentityMiddleware(newTestLogger(), testSecret),
	)
}

func TestIdentityFromCookie(t *testing.T) {
	var got chat.Identity
	h := identityChain(&got)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/room/7", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, "42", "alice", testSecret)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := chat.Identity{UserID: 42, Username: "alice", Authenticated: true}
	if got != want {
		t.Errorf("resolved identity %+v, want %+v", got, want)
	}
}

func TestIdentityFromQueryParam(t *testing.T) {
	var got chat.Identity
	h := identityChain(&got)

	token := signToken(t, "9", "bob", testSecret)
	req := httptest.NewRequest(http.MethodGet, "/ws/chat/room/7?token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !got.Authenticated || got.UserID != 9 {
		t.Errorf("expected authenticated user 9, got %+v", got)
	}
}

func TestMissingTokenIsAnonymous(t *testing.T) {
	var got chat.Identity
	h := identityChain(&got)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/room/7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous connections must pass through, got %d", rec.Code)
	}
	if got != chat.Anonymous {
		t.Errorf("expected anonymous identity, got %+v", got)
	}
}

func TestInvalidTokenIsRejected(t *testing.T) {
	var got chat.Identity
	h := identityChain(&got)

	cases := map[string]string{
		"wrong secret":        signToken(t, "42", "alice", "other-secret"),
		"non-numeric subject": signToken(t, "mallory", "mallory", testSecret),
		"empty subject":       signToken(t, "", "eve", testSecret),
		"garbage":             "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/chat/room/7?token="+token, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequestLoggerCarriesResolvedIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	final := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewIdentityMiddleware(newTestLogger(), testSecret),
		middleware.NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/room/7", nil)
	req.AddCookie(&http.Cookie{Name: "session-token", Value: signToken(t, "42", "alice", testSecret)})
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if !strings.Contains(line, `"authenticated":true`) {
		t.Errorf("log line missing authenticated flag: %s", line)
	}
	if !strings.Contains(line, `"userID":42`) {
		t.Errorf("log line missing user id: %s", line)
	}
}
