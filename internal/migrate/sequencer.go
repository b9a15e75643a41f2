// Package migrate upgrades persisted showcase data to the current storage generation.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
)

// Generation identifies a storage layout.
type Generation int

const (
	GenNone Generation = iota - 1 // nothing persisted
	Gen0                          // blob in the legacy store
	Gen1                          // blob in the durable store
	Gen2                          // one key per item plus the order key
)

func (g Generation) String() string {
	switch g {
	case Gen0:
		return "gen0"
	case Gen1:
		return "gen1"
	case Gen2:
		return "gen2"
	default:
		return "none"
	}
}

// ErrMalformedPayload marks persisted data that cannot be read back as items.
// The sequencer discards it and moves on to the next step.
var ErrMalformedPayload = errors.New("malformed payload")

// Outcome is what a step found and did.
type Outcome struct {
	Generation Generation
	Items      []domain.Item

	// Persisted is true when Items are fully stored in the current layout.
	Persisted bool
	// Migrated is true when data was moved from an older generation.
	Migrated bool
	// Retire removes the old generation. Non-nil when it is still present; call it
	// once Items are persisted so a stale copy cannot be migrated again.
	Retire func(ctx context.Context) error
}

// Step detects and migrates one generation.
type Step interface {
	Name() string
	Detect(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) (Outcome, error)
}

// Sequencer evaluates steps in priority order and stops at the first one holding data.
type Sequencer struct {
	steps []Step
	log   logger.Logger
}

func NewSequencer(log logger.Logger, steps ...Step) *Sequencer {
	return &Sequencer{steps: steps, log: log}
}

// Run returns the outcome of the first step that detected usable data, or an outcome
// with GenNone. Read failures abort the run: starting from defaults on top of data that
// could not be read would overwrite it on the first edit.
func (s *Sequencer) Run(ctx context.Context) (Outcome, error) {
	for _, step := range s.steps {
		found, err := step.Detect(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: detect: %w", step.Name(), err)
		}
		if !found {
			s.log.Debug("migration step found nothing", logger.String("step", step.Name()))
			continue
		}

		out, err := step.Migrate(ctx)
		if errors.Is(err, ErrMalformedPayload) {
			s.log.Warn("discarding malformed data",
				logger.String("step", step.Name()),
				logger.Error(err))
			continue
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: migrate: %w", step.Name(), err)
		}

		s.log.Info("storage loaded",
			logger.String("step", step.Name()),
			logger.String("generation", out.Generation.String()),
			logger.Int("items", len(out.Items)),
			logger.Bool("migrated", out.Migrated),
			logger.Bool("persisted", out.Persisted))
		return out, nil
	}

	s.log.Info("no persisted data, using defaults")
	return Outcome{Generation: GenNone}, nil
}
