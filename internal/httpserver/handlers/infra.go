package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
	"github.com/MrSnakeDoc/showcase/internal/quota"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
	Gallery    gallery.Status             `json:"gallery"`
	Storage    quota.Status               `json:"storage"`
	LastNotice uint64                     `json:"last_notice"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := d.Gallery.Status()
		usage := d.Quota.Estimate(r.Context())

		components := map[string]componentStatus{
			"storage": checkStore(r, d),
			"gallery": {
				OK:     status.Materialized || status.Generation == migrate.GenNone.String(),
				Impact: galleryImpact(status),
			},
			"quota": {
				OK:     !usage.Critical,
				Impact: quotaImpact(usage),
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
			Gallery:    status,
			Storage:    usage,
			LastNotice: d.Gallery.Notices().Last(),
		})
	}
}

// determineMode is "critical" when storage is down, "degraded" when writes are at risk.
func determineMode(components map[string]componentStatus) string {
	if s, ok := components["storage"]; ok && !s.OK {
		return "critical"
	}
	for _, c := range components {
		if !c.OK {
			return "degraded"
		}
	}
	return "optimal"
}

func checkStore(r *http.Request, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{OK: false, Impact: "edits-not-persisted", Error: "store not initialized"}
	}
	if err := pingStore(r.Context(), d.Store); err != nil {
		return componentStatus{OK: false, Backend: d.StoreBackend, Impact: "edits-not-persisted", Error: "timeout"}
	}
	return componentStatus{OK: true, Backend: d.StoreBackend}
}

func galleryImpact(s gallery.Status) string {
	switch {
	case s.Generation == migrate.GenNone.String() && !s.Materialized:
		return "showing-defaults"
	case !s.Materialized:
		return "migration-pending"
	case s.Pending > 0:
		return "writes-pending"
	default:
		return ""
	}
}

func quotaImpact(s quota.Status) string {
	switch {
	case !s.Known:
		return "usage-unknown"
	case s.Critical:
		return "storage-nearly-full"
	default:
		return ""
	}
}
