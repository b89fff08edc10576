package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/view"
)

// Gate guards routes behind authentication and authorization. It is
// composed in a fixed order: RequireAuth first, then one of
// RequirePermission or RequireAdmin. The gate only produces allow/deny
// and never mutates state.
type Gate struct {
	Service   *Service
	Templates *view.Engine
	Logger    *slog.Logger
}

// RequireAuth redirects anonymous requests to the login page, carrying
// the originally requested path so login can return the user there.
func (g Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.currentUserID(r); !ok {
			target := "/auth/login?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission denies the request with a rendered 403 page unless
// the authenticated principal holds the permission.
func (g Gate) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := g.currentUserID(r)
			if !ok {
				g.forbid(w, r)
				return
			}
			allowed, err := g.Service.Can(r.Context(), userID, permission)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("rbac permission check", slog.String("permission", permission), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				g.forbid(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin denies the request unless the principal's role is the
// Admin role. This is a distinct, harder gate than any permission flag.
func (g Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := g.currentUserID(r)
		if !ok {
			g.forbid(w, r)
			return
		}
		isAdmin, err := g.Service.IsAdmin(r.Context(), userID)
		if err != nil {
			if g.Logger != nil {
				g.Logger.Error("rbac admin check", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if !isAdmin {
			g.forbid(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g Gate) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

// forbid renders the terminal 403 page; denial is never a redirect.
func (g Gate) forbid(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusForbidden)
	if g.Templates == nil {
		_, _ = w.Write([]byte(http.StatusText(http.StatusForbidden)))
		return
	}
	data := view.TemplateData{Title: "Forbidden", CurrentPath: r.URL.Path}
	if err := g.Templates.Render(w, "pages/403.html", data); err != nil && g.Logger != nil {
		g.Logger.Error("render 403", slog.Any("error", err))
	}
}
