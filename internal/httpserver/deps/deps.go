package deps

import (
	"time"

	"github.com/MrSnakeDoc/showcase/internal/auth"
	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/imaging"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/quota"
	"github.com/MrSnakeDoc/showcase/internal/store"
)

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // IPs allowed to access readyz/infra endpoints
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)

	Gallery      *gallery.Gallery // In-memory showcase and its persistence queue
	Store        store.KV         // Durable store, pinged by readyz
	StoreBackend string           // "redis" | "memory"
	Quota        *quota.Estimator // Storage usage estimate
	Sessions     *auth.Sessions   // Admin token check and session cookies
	UploadLimit  int64            // Max body size of image uploads
	WriteLimit   WriteLimit       // Rate limit applied to admin writes

	// Decoded images for public hit tests; nil decodes on every request
	HitImages *imaging.DecodedCache
}

// WriteLimit is the token bucket of admin write routes.
type WriteLimit struct {
	Burst        int
	RefillPerMin int
}

// Now returns the current time through TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
