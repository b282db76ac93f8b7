package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/swipe-sync/internal/ai"
	"github.com/spigell/swipe-sync/internal/matching"
	"github.com/spigell/swipe-sync/internal/session"
)

const defaultAIConcurrency = 4

type aiFitFilter struct {
	enabled bool
	reason  string
	config  *AIConfig
	deps    *AIFitDeps
}

type AIFitDeps struct {
	Logger  *zap.Logger
	Matcher ai.Matcher
	Viewer  *session.User
}

// NewAIFit creates the AI-based filtering step. Cards the advisor rejects are
// dropped; the rest carry their assessment.
func NewAIFit(cfg *AIConfig, deps *AIFitDeps) Filter {
	return &aiFitFilter{
		enabled: cfg.Enabled,
		config:  cfg,
		deps:    deps,
	}
}

func (f *aiFitFilter) Name() string { return "ai_fit" }

func (f *aiFitFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *aiFitFilter) IsEnabled() bool { return f.enabled }

func (f *aiFitFilter) Validate() error {
	if f.deps == nil || f.deps.Matcher == nil {
		return fmt.Errorf("ai matcher is required when ai filter is enabled")
	}
	if f.deps.Viewer == nil {
		return fmt.Errorf("current user is required for AI evaluation")
	}
	if f.config.Gemini == nil {
		return fmt.Errorf("gemini configuration is required when ai filter is enabled")
	}
	if strings.TrimSpace(f.config.Gemini.Model) == "" {
		return fmt.Errorf("gemini model is required when ai filter is enabled")
	}
	return nil
}

func (f *aiFitFilter) Apply(ctx context.Context, cards []matching.Card) ([]matching.Card, Step, error) {
	logger := f.deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := f.config.Concurrency
	if limit <= 0 {
		limit = defaultAIConcurrency
	}

	evaluated := make([]matching.Card, len(cards))
	copy(evaluated, cards)
	fits := make([]bool, len(cards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range evaluated {
		g.Go(func() error {
			card := &evaluated[i]
			assessment, err := f.deps.Matcher.Evaluate(gctx, f.deps.Viewer, card.Target())
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("AI evaluation failed", zap.String("target_id", card.ID), zap.Error(err))
				card.Assessment = &ai.Assessment{Error: err.Error()}
				fits[i] = true
				return nil
			}

			card.Assessment = assessment
			fits[i] = assessment.Fit
			if !assessment.Fit {
				logger.Info("card rejected by AI provider",
					zap.String("target_id", card.ID),
					zap.Float64("ai_score", assessment.Score),
					zap.String("reason", assessment.Reason),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return cards, Step{}, err
	}

	kept := make([]matching.Card, 0, len(evaluated))
	var dropped []string
	for i, card := range evaluated {
		if fits[i] {
			kept = append(kept, card)
			continue
		}
		dropped = append(dropped, card.ID)
	}

	logger.Info("AI filtering completed",
		zap.Int("initial_cards", len(cards)),
		zap.Int("approved_cards", len(kept)),
	)

	return kept, stepOf(len(cards), kept, dropped), nil
}

func (f *aiFitFilter) Status() Status {
	details := map[string]string{}
	if f.config != nil {
		details["minimum_fit_score"] = fmt.Sprintf("%.2f", f.config.MinimumFitScore)
		if f.config.Gemini != nil {
			details["model"] = f.config.Gemini.Model
			details["max_retries"] = strconv.Itoa(f.config.Gemini.MaxRetries)
			details["max_log_length"] = strconv.Itoa(f.config.Gemini.MaxLogLength)
		}
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
