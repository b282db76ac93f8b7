package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/ai"
	"github.com/spigell/swipe-sync/internal/ai/gemini"
	"github.com/spigell/swipe-sync/internal/filtering"
	"github.com/spigell/swipe-sync/internal/matching"
	"github.com/spigell/swipe-sync/internal/resync"
	"github.com/spigell/swipe-sync/internal/secrets"
	"github.com/spigell/swipe-sync/internal/session"
)

const (
	PromptLike    = "Like"
	PromptPass    = "Pass"
	PromptDetails = "Details"
	PromptQuit    = "Quit"
)

var swipeCmd = &cobra.Command{
	Use:   "swipe",
	Short: "Swipe through job offers or candidates in the terminal",
	Run: func(_ *cobra.Command, _ []string) {
		swipe()
	},
}

func init() {
	rootCmd.AddCommand(swipeCmd)
}

func swipe() {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := bootstrap(ctx, logger)
	if err != nil {
		logger.Fatal("bootstrapping session", zap.Error(err))
	}

	// already known matches feed the already_matched filter
	if _, err := resync.New(env.api, env.store, logger).Run(ctx); err != nil {
		logger.Warn("resync failed, already matched targets may show up", zap.Error(err))
	}

	cards, err := loadCards(ctx, env)
	if err != nil {
		logger.Fatal("loading deck", zap.Error(err))
	}

	logger.Info("loaded deck", zap.Int("count", len(cards)))

	viewer := env.store.CurrentUser()
	steps := prepareFilters(ctx, env, viewer)

	for _, status := range filtering.Describe(steps) {
		logger.Debug("filter status",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	cards, err = filtering.Run(ctx, logger, steps, cards)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if len(cards) == 0 {
		logger.Info("exiting", zap.String("reason", "no cards left after filters"))
		return
	}

	_ = env.store.SetView(session.ViewMatching)
	flow := matching.NewFlow(matching.NewDeck(cards), env.api, env.store, env.config.Gesture.Threshold, logger)

	if err := swipeLoop(ctx, flow, logger); err != nil && !errors.Is(err, errExit) {
		logger.Fatal("exiting", zap.Error(err))
	}

	logger.Info("swiping finished",
		zap.Int("swiped", flow.Deck().Index()),
		zap.Int("remaining", flow.Deck().Remaining()),
		zap.Int("matches", len(env.store.Snapshot().Matches)),
	)
}

func loadCards(ctx context.Context, env *environment) ([]matching.Card, error) {
	user := env.store.CurrentUser()
	if user == nil {
		return nil, errors.New("no current user")
	}

	switch user.Kind {
	case session.KindCandidate:
		offers, err := env.api.JobOffers(ctx, env.config.filters())
		if err != nil {
			return nil, fmt.Errorf("job offers: %w", err)
		}
		return matching.CardsFromJobs(offers), nil
	case session.KindRecruiter:
		candidates, err := env.api.Candidates(ctx, env.config.filters())
		if err != nil {
			return nil, fmt.Errorf("candidates: %w", err)
		}
		return matching.CardsFromCandidates(candidates), nil
	default:
		return nil, fmt.Errorf("unsupported user type %q", user.Kind)
	}
}

func swipeLoop(ctx context.Context, flow *matching.Flow, logger *zap.Logger) error {
	for !flow.Deck().Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		card, _ := flow.Deck().Current()
		prompt := promptui.Select{
			Label: fmt.Sprintf("[%d/%d] %s", flow.Deck().Index()+1, flow.Deck().Len(), card.Title()),
			Items: []string{PromptLike, PromptPass, PromptDetails, PromptQuit},
		}

		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		if err := handleSwipeAction(ctx, action, flow, card, logger); err != nil {
			return err
		}
	}

	logger.Info("deck finished")
	return nil
}

func handleSwipeAction(ctx context.Context, action string, flow *matching.Flow, card matching.Card, logger *zap.Logger) error {
	var (
		out matching.Outcome
		err error
	)

	switch action {
	case PromptLike:
		out, err = flow.Like(ctx)
	case PromptPass:
		out, err = flow.Pass(ctx)
	case PromptDetails:
		logger.Info(strings.Join(card.Details(), "\n"), zap.String("target_id", card.ID))
		return nil
	case PromptQuit:
		logger.Info("exiting", zap.String("reason", "quit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}

	if err != nil {
		// the card stays current, the user may retry
		logger.Warn("swipe failed", zap.String("target_id", card.ID), zap.Error(err))
		return nil
	}

	logger.Info("swiped",
		zap.String("target_id", out.Card.ID),
		zap.String("direction", string(out.Direction)),
	)
	if out.Match != nil {
		logger.Info("it's a match!", zap.String("match_id", out.Match.ID), zap.String("target", out.Card.Title()))
	}
	return nil
}

func prepareFilters(ctx context.Context, env *environment, viewer *session.User) []filtering.Filter {
	var matcher ai.Matcher
	disabledReason := ""

	if env.config.AI.Enabled {
		m, err := newAIMatcher(ctx, &env.config.AI, env.logger)
		if err != nil {
			env.logger.Warn("skipping AI filter", zap.Error(err))
			disabledReason = err.Error()
		} else {
			matcher = m
		}
	}

	steps := filtering.Steps(env.config.filteringConfig(), filtering.Deps{
		Logger:  env.logger,
		Store:   env.store,
		Matcher: matcher,
		Viewer:  viewer,
	})

	if disabledReason != "" {
		filtering.DisableByName(steps, "ai_fit", disabledReason)
	}

	return steps
}

func newAIMatcher(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Matcher, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required when ai filter is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	minScore := cfg.MinimumFitScore
	if minScore < 0 {
		minScore = 0
	}

	matcher := gemini.NewMatcher(generator, minScore, cfg.Gemini.MaxLogLength, logger.With(zap.Float64("minimum_fit_score", minScore)))
	matcher.SetPromptOverrides(cfg.Gemini.Prompt)

	return matcher, nil
}
