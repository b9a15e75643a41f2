package mw

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/MrSnakeDoc/showcase/internal/auth"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/utils"
)

// AdminParam is the query parameter carrying the admin token.
const AdminParam = "admin"

// AdminEntry turns a GET carrying ?admin=<token> into a session cookie, then redirects
// to the same URL without the parameter. A wrong token redirects without the cookie.
func AdminEntry(sessions *auth.Sessions, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if r.Method != http.MethodGet || !q.Has(AdminParam) {
				next.ServeHTTP(w, r)
				return
			}

			token := q.Get(AdminParam)
			q.Del(AdminParam)
			ip := utils.ClientIP(r, trustProxy)

			if sessions.CheckToken(token) {
				signed, exp, err := sessions.Issue()
				if err != nil {
					log.Error("failed to issue admin session", logger.Error(err))
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, sessions.Cookie(signed, exp))
				log.Info("admin session opened", logger.String("remote_ip", ip))
			} else {
				log.Warn("admin token rejected", logger.String("remote_ip", ip))
			}

			http.Redirect(w, r, localTarget(r.URL, q), http.StatusFound)
		})
	}
}

// localTarget rebuilds the request path with query q as a same-origin reference.
// A path such as "//host/" or "/\host/" must not become a scheme-relative Location.
func localTarget(u *url.URL, q url.Values) string {
	p := path.Clean("/" + strings.TrimLeft(u.Path, `/\`))
	if strings.HasSuffix(u.Path, "/") && p != "/" {
		p += "/"
	}
	target := url.URL{Path: p, RawQuery: q.Encode()}
	return target.RequestURI()
}

// RequireAdmin rejects requests without a valid session cookie.
func RequireAdmin(sessions *auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsAdmin(r) {
				reject(w, http.StatusUnauthorized, "admin session required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
