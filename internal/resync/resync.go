// Package resync reconciles the session with the REST snapshot after a
// realtime connection (re)opens, filling whatever was missed while offline.
package resync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/session"
)

// Source is the REST view of the session.
type Source interface {
	Matches(ctx context.Context) ([]session.Match, error)
	Chats(ctx context.Context) ([]session.Chat, error)
	ChatMessages(ctx context.Context, chatID string) ([]session.Message, error)
	Notifications(ctx context.Context) ([]session.Notification, error)
}

// Report counts what a resync changed.
type Report struct {
	Matches       int
	Chats         int
	Messages      int
	Notifications int
}

// Empty reports whether the resync found nothing new.
func (r Report) Empty() bool {
	return r == Report{}
}

type Syncer struct {
	source Source
	store  *session.Store
	logger *zap.Logger
}

func New(source Source, store *session.Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{source: source, store: store, logger: logger}
}

// Run pulls matches, chats and notifications and applies only what the store
// does not have yet. A second run over the same snapshot changes nothing.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	var report Report

	matches, err := s.source.Matches(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch matches: %w", err)
	}
	for _, m := range matches {
		if existing, ok := s.store.Match(m.ID); ok && sameMatch(existing, m) {
			continue
		}
		if err := s.store.AddMatch(m); err != nil {
			s.logger.Warn("skipping match from resync", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		report.Matches++
	}

	chats, err := s.source.Chats(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch chats: %w", err)
	}
	for _, chat := range chats {
		added, appended, err := s.syncChat(ctx, chat)
		if err != nil {
			return report, err
		}
		report.Chats += added
		report.Messages += appended
	}

	notifications, err := s.source.Notifications(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch notifications: %w", err)
	}
	if n := s.notificationChanges(notifications); n > 0 {
		if err := s.store.MergeNotifications(notifications); err != nil {
			return report, fmt.Errorf("merge notifications: %w", err)
		}
		report.Notifications = n
	}

	s.logger.Info("resync finished",
		zap.Int("matches", report.Matches),
		zap.Int("chats", report.Chats),
		zap.Int("messages", report.Messages),
		zap.Int("notifications", report.Notifications),
	)

	return report, nil
}

func (s *Syncer) syncChat(ctx context.Context, chat session.Chat) (int, int, error) {
	messages, err := s.source.ChatMessages(ctx, chat.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch messages of chat %q: %w", chat.ID, err)
	}

	known, ok := s.store.Chat(chat.ID)
	if !ok {
		if len(messages) > 0 {
			chat.Messages = messages
		}
		if err := s.store.AddChat(chat); err != nil {
			s.logger.Warn("skipping chat from resync", zap.String("chat_id", chat.ID), zap.Error(err))
			return 0, 0, nil
		}
		return 1, 0, nil
	}

	if len(messages) == 0 {
		messages = chat.Messages
	}

	appended := 0
	for _, m := range messages {
		if known.HasMessage(m.ID) {
			continue
		}
		err := s.store.AppendMessage(chat.ID, m)
		switch {
		case err == nil:
			appended++
		case errors.Is(err, session.ErrDuplicateMessage):
		default:
			s.logger.Warn("skipping message from resync",
				zap.String("chat_id", chat.ID),
				zap.String("message_id", m.ID),
				zap.Error(err),
			)
		}
	}
	return 0, appended, nil
}

// notificationChanges counts incoming notifications that are unknown or newly read.
func (s *Syncer) notificationChanges(list []session.Notification) int {
	current := make(map[string]bool)
	for _, n := range s.store.Snapshot().Notifications {
		current[n.ID] = current[n.ID] || !n.Read
	}

	changes := 0
	seen := make(map[string]struct{}, len(list))
	for _, n := range list {
		if n.ID == "" {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}

		unread, ok := current[n.ID]
		if !ok || (n.Read && unread) {
			changes++
		}
	}
	return changes
}

func sameMatch(a, b session.Match) bool {
	if b.Status == "" {
		b.Status = session.MatchPending
	}
	// a matched record absorbs a pending upsert
	if a.Status == session.MatchMatched && b.Status == session.MatchPending {
		b.Status = a.Status
		b.CandidateLiked, b.RecruiterLiked = true, true
	}
	return a.ID == b.ID &&
		a.CandidateID == b.CandidateID &&
		a.RecruiterID == b.RecruiterID &&
		a.JobOfferID == b.JobOfferID &&
		a.Status == b.Status &&
		a.CandidateLiked == b.CandidateLiked &&
		a.RecruiterLiked == b.RecruiterLiked &&
		a.ChatID == b.ChatID &&
		a.CreatedAt.Equal(b.CreatedAt)
}
