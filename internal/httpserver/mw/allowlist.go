package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/utils"
)

// AllowCIDRs keeps the infra endpoints (readyz, infra) to the listed addresses and
// prefixes. An empty list, or one with no readable entry, lets everything through.
func AllowCIDRs(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	set, invalid := utils.NewAddrSet(allowed)
	for _, v := range invalid {
		log.Warn("ignoring unreadable allowlist entry", logger.String("entry", v))
	}
	if set.Len() == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	log.Debug("infra allowlist active", logger.Int("prefixes", set.Len()), logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := utils.ClientAddr(r, trustProxy)
			if !ok || !set.Contains(addr) {
				log.Debug("infra request refused",
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("client", utils.ClientIP(r, trustProxy)))
				reject(w, http.StatusForbidden, "address not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
