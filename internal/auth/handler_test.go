package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"/samples":          "/samples",
		"/admin/staff":      "/admin/staff",
		"//evil.example":    "",
		"http://evil.test/": "",
		"samples":           "",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q; want %q", in, got, want)
		}
	}
}

func testHandler(t *testing.T) (*Handler, *shared.SessionManager) {
	t.Helper()
	svc, roles := testSvc(t)
	if err := svc.EnsureBootstrapAdmin(context.Background(), roles, "password123"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := shared.NewSessionManager(client, "samplyze_session", "session-secret", time.Hour, false)

	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("new view engine: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(logger, svc, templates, sessions, shared.NewCSRFManager("csrf-secret")), sessions
}

func postLogin(t *testing.T, h *Handler, sessions *shared.SessionManager, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessions.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)
	return rec
}

func TestLoginRedirectsToNextTarget(t *testing.T) {
	h, sessions := testHandler(t)

	rec := postLogin(t, h, sessions, url.Values{
		"username": {BootstrapAdminUsername},
		"password": {"password123"},
		"next":     {"/samples"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/samples" {
		t.Fatalf("redirect target = %q; want /samples", loc)
	}
}

func TestLoginIgnoresExternalNextTarget(t *testing.T) {
	h, sessions := testHandler(t)

	rec := postLogin(t, h, sessions, url.Values{
		"username": {BootstrapAdminUsername},
		"password": {"password123"},
		"next":     {"http://evil.test/phish"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("redirect target = %q; want /", loc)
	}
}

func TestLoginFailureMessageIsGeneric(t *testing.T) {
	h, sessions := testHandler(t)

	unknown := postLogin(t, h, sessions, url.Values{
		"username": {"nobody"},
		"password": {"whatever"},
	})
	wrong := postLogin(t, h, sessions, url.Values{
		"username": {BootstrapAdminUsername},
		"password": {"not it"},
	})
	for name, rec := range map[string]*httptest.ResponseRecorder{"unknown user": unknown, "wrong password": wrong} {
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d; want 400", name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid username or password") {
			t.Fatalf("%s: generic failure message missing", name)
		}
	}
}
