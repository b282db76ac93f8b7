package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/ai"
	"github.com/spigell/swipe-sync/internal/matching"
	"github.com/spigell/swipe-sync/internal/session"
)

// Filter represents a single filtering step applied to deck cards.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, cards []matching.Card) ([]matching.Card, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial    int
	Dropped    int
	Left       int
	DroppedIDs []string
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	IncludeInactive  bool
	ExcludeCompanies []string
	AI               *AIConfig
}

type AIConfig struct {
	Enabled         bool
	MinimumFitScore float64
	// Concurrency bounds parallel advisor calls.
	Concurrency int
	Gemini      *GeminiConfig
}

type GeminiConfig struct {
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// MatchSource exposes the session matches used to hide already matched targets.
type MatchSource interface {
	Snapshot() session.State
}

type Deps struct {
	Logger  *zap.Logger
	Store   MatchSource
	Matcher ai.Matcher
	Viewer  *session.User
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Steps returns the default pipeline in execution order.
func Steps(cfg *Config, deps Deps) []Filter {
	if cfg == nil {
		cfg = &Config{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	aiCfg := cfg.AI
	if aiCfg == nil {
		aiCfg = &AIConfig{}
	}

	return []Filter{
		NewInactive(cfg.IncludeInactive),
		NewAlreadyMatched(deps.Store, deps.Viewer),
		NewExcludedCompanies(cfg.ExcludeCompanies),
		NewAIFit(aiCfg, &AIFitDeps{Logger: deps.Logger, Matcher: deps.Matcher, Viewer: deps.Viewer}),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the enabled filters sequentially and returns the remaining cards.
func Run(ctx context.Context, logger *zap.Logger, steps []Filter, cards []matching.Card) ([]matching.Card, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, cards)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
			zap.Strings("dropped_ids", info.DroppedIDs),
		)

		cards = next
	}

	return cards, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// keep returns the cards for which pred is true and the ids of dropped ones.
func keep(cards []matching.Card, pred func(matching.Card) bool) ([]matching.Card, []string) {
	kept := make([]matching.Card, 0, len(cards))
	var dropped []string
	for _, c := range cards {
		if pred(c) {
			kept = append(kept, c)
			continue
		}
		dropped = append(dropped, c.ID)
	}
	return kept, dropped
}

func stepOf(initial int, kept []matching.Card, dropped []string) Step {
	return Step{Initial: initial, Dropped: initial - len(kept), Left: len(kept), DroppedIDs: dropped}
}
