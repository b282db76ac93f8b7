package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/api"
	"github.com/spigell/swipe-sync/internal/logger"
	"github.com/spigell/swipe-sync/internal/secrets"
	"github.com/spigell/swipe-sync/internal/session"
)

// environment is what every session-bound command starts from.
type environment struct {
	config     *Config
	logger     *zap.Logger
	api        *api.Client
	store      *session.Store
	credential secrets.Credential
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// bootstrap loads the config and the session token, then fetches the current
// user so the store starts authenticated.
func bootstrap(ctx context.Context, l *zap.Logger) (*environment, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	tokenSource := secrets.Source{
		Name:  "session token",
		Value: config.Auth.Token,
		File:  config.Auth.TokenFile,
	}

	token, err := secrets.Load(tokenSource)
	if err != nil {
		return nil, fmt.Errorf("%w (set SWIPE_TOKEN_FILE environment variable or the 'auth.token-file' key)", err)
	}

	client := api.New(logger.Component(l, "api"), config.API.URL, token, config.API.Timeout)
	if config.API.UserAgent != "" {
		client.UserAgent = config.API.UserAgent
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, fmt.Errorf("session token was rejected: %w", err)
		}
		return nil, fmt.Errorf("loading current user: %w", err)
	}

	userID := strings.TrimSpace(config.Auth.UserID)
	if userID == "" {
		userID = user.ID
	}
	if userID != user.ID {
		return nil, fmt.Errorf("configured user id %q does not match the token owner %q", userID, user.ID)
	}

	credential, err := secrets.LoadCredential(userID, secrets.Source{Name: tokenSource.Name, Value: token})
	if err != nil {
		return nil, err
	}

	store := session.New(logger.Component(l, "session"), session.WithObserver(func(c session.Change) {
		l.Debug("session changed", zap.String("action", c.Action), zap.Uint64("version", c.Version))
	}))
	if err := store.SetUser(*user); err != nil {
		return nil, fmt.Errorf("storing current user: %w", err)
	}

	l.Info("authenticated",
		zap.String("user_id", user.ID),
		zap.String("user_type", string(user.Kind)),
	)

	return &environment{
		config:     config,
		logger:     l,
		api:        client,
		store:      store,
		credential: credential,
	}, nil
}
