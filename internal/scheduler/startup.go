package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
)

// Migrator finds and upgrades persisted data.
type Migrator interface {
	Run(ctx context.Context) (migrate.Outcome, error)
}

// Loadable receives the migration outcome.
type Loadable interface {
	Load(out migrate.Outcome)
}

// StartupLoader runs the migration once at startup and hands the result to the gallery.
type StartupLoader struct {
	migrator Migrator
	target   Loadable
	logger   logger.Logger
}

func NewStartupLoader(m Migrator, target Loadable, log logger.Logger) *StartupLoader {
	return &StartupLoader{migrator: m, target: target, logger: log}
}

// Load returns the outcome it installed.
func (s *StartupLoader) Load(ctx context.Context) (migrate.Outcome, error) {
	s.logger.Info("loading showcase from storage")

	out, err := s.migrator.Run(ctx)
	if err != nil {
		return migrate.Outcome{}, err
	}
	s.target.Load(out)

	s.logger.Info("showcase loaded",
		logger.String("generation", out.Generation.String()),
		logger.Int("items", len(out.Items)))
	return out, nil
}
