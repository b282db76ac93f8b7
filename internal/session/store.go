// Package session holds the single authoritative in-memory view of an
// authenticated session: current user, matches, chats, notifications and the
// active view.
//
// The Store is mutated only through its action methods. Every action is applied
// atomically under the store lock, so readers never observe a partially applied
// action, and every applied action bumps the state Version.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is a consistent copy of the session taken at one Version.
type State struct {
	CurrentUser   *User
	Matches       map[string]Match
	Chats         map[string]*Chat
	Notifications []Notification
	CurrentView   View
	Loading       bool
	Version       uint64
}

// Change describes an applied action.
type Change struct {
	Action  string
	Version uint64
}

type Option func(*Store)

// WithObserver registers fn to be called after every applied action.
// Observers run synchronously on the goroutine that issued the action.
func WithObserver(fn func(Change)) Option {
	return func(s *Store) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

type Store struct {
	mu    sync.RWMutex
	state State

	logger    *zap.Logger
	observers []func(Change)
	anomalies atomic.Uint64
}

func New(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		state:  initialState(0),
		logger: logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func initialState(version uint64) State {
	return State{
		Matches:     make(map[string]Match),
		Chats:       make(map[string]*Chat),
		CurrentView: ViewLogin,
		Version:     version,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		CurrentUser:   s.state.CurrentUser.clone(),
		Matches:       make(map[string]Match, len(s.state.Matches)),
		Chats:         make(map[string]*Chat, len(s.state.Chats)),
		Notifications: append([]Notification(nil), s.state.Notifications...),
		CurrentView:   s.state.CurrentView,
		Loading:       s.state.Loading,
		Version:       s.state.Version,
	}
	for id, m := range s.state.Matches {
		st.Matches[id] = m
	}
	for id, c := range s.state.Chats {
		st.Chats[id] = c.clone()
	}

	return st
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentUser.clone()
}

func (s *Store) Match(id string) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.Matches[id]
	return m, ok
}

func (s *Store) Chat(id string) (*Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.Chats[id]
	if !ok {
		return nil, false
	}
	return c.clone(), true
}

// UnreadNotifications counts notifications whose read flag is false.
func (s *Store) UnreadNotifications() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.state.Notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// Anomalies returns the number of rejected actions that pointed to an
// inconsistency between the caller and the store (unknown ids, invalid transitions).
func (s *Store) Anomalies() uint64 {
	return s.anomalies.Load()
}

func (s *Store) SetUser(user User) error {
	if err := user.Validate(); err != nil {
		return s.report("set_user", err)
	}

	return s.apply("set_user", func(st *State) error {
		st.CurrentUser = user.clone()
		return nil
	})
}

func (s *Store) SetView(view View) error {
	return s.apply("set_view", func(st *State) error {
		st.CurrentView = view
		return nil
	})
}

func (s *Store) SetLoading(loading bool) error {
	return s.apply("set_loading", func(st *State) error {
		st.Loading = loading
		return nil
	})
}

// AddMatch inserts the match or replaces the one with the same id.
// A stored matched record is never regressed to pending by a later upsert.
func (s *Store) AddMatch(match Match) error {
	if match.ID == "" {
		return s.report("add_match", fmt.Errorf("add match: %w", ErrEmptyID))
	}
	if match.Status == "" {
		match.Status = MatchPending
	}
	if match.Status == MatchMatched && !match.Mutual() {
		return s.report("add_match", fmt.Errorf("match %q is matched without both likes: %w", match.ID, ErrInvalidMatch))
	}

	return s.apply("add_match", func(st *State) error {
		if existing, ok := st.Matches[match.ID]; ok && existing.Status == MatchMatched && match.Status == MatchPending {
			s.logger.Debug("keeping matched status on upsert", zap.String("match_id", match.ID))
			match.Status = MatchMatched
			match.CandidateLiked = true
			match.RecruiterLiked = true
		}
		st.Matches[match.ID] = match
		return nil
	})
}

func (s *Store) UpdateMatch(id string, update MatchUpdate) error {
	return s.apply("update_match", func(st *State) error {
		existing, ok := st.Matches[id]
		if !ok {
			return fmt.Errorf("update match %q: %w", id, ErrUnknownMatch)
		}

		merged := update.apply(existing)
		if existing.Status == MatchMatched && merged.Status == MatchPending {
			return fmt.Errorf("match %q cannot regress from matched to pending: %w", id, ErrInvalidMatch)
		}
		if merged.Status == MatchMatched && !merged.Mutual() {
			return fmt.Errorf("match %q is matched without both likes: %w", id, ErrInvalidMatch)
		}

		st.Matches[id] = merged
		return nil
	})
}

// AddChat inserts the chat or replaces the one with the same id.
func (s *Store) AddChat(chat Chat) error {
	if chat.ID == "" {
		return s.report("add_chat", fmt.Errorf("add chat: %w", ErrEmptyID))
	}

	stored := chat.clone()
	stored.Messages = stored.Messages[:0]
	for _, m := range chat.Messages {
		if stored.HasMessage(m.ID) {
			s.logger.Debug("dropping duplicate message in chat payload",
				zap.String("chat_id", chat.ID),
				zap.String("message_id", m.ID),
			)
			continue
		}
		m.ChatID = chat.ID
		stored.Messages = append(stored.Messages, m)
	}

	return s.apply("add_chat", func(st *State) error {
		st.Chats[chat.ID] = stored
		return nil
	})
}

// AppendMessage appends msg to the chat in the order it is received.
// The chat must already exist.
func (s *Store) AppendMessage(chatID string, msg Message) error {
	if chatID == "" || msg.ID == "" {
		return s.report("append_message", fmt.Errorf("append message: %w", ErrEmptyID))
	}
	msg.ChatID = chatID

	return s.apply("append_message", func(st *State) error {
		chat, ok := st.Chats[chatID]
		if !ok {
			return fmt.Errorf("append message %q to chat %q: %w", msg.ID, chatID, ErrUnknownChat)
		}
		if chat.HasMessage(msg.ID) {
			return fmt.Errorf("message %q in chat %q: %w", msg.ID, chatID, ErrDuplicateMessage)
		}
		chat.Messages = append(chat.Messages, msg)
		return nil
	})
}

// AddNotification appends n. Notifications are not deduplicated.
func (s *Store) AddNotification(n Notification) error {
	if n.ID == "" {
		return s.report("add_notification", fmt.Errorf("add notification: %w", ErrEmptyID))
	}

	return s.apply("add_notification", func(st *State) error {
		st.Notifications = append(st.Notifications, n)
		return nil
	})
}

// MarkNotificationRead sets the read flag of every notification with the id.
// Unknown ids are ignored.
func (s *Store) MarkNotificationRead(id string) error {
	return s.apply("mark_notification_read", func(st *State) error {
		found := false
		for i := range st.Notifications {
			if st.Notifications[i].ID == id {
				st.Notifications[i].Read = true
				found = true
			}
		}
		if !found {
			s.logger.Debug("notification to mark read not found", zap.String("notification_id", id))
		}
		return nil
	})
}

// MergeNotifications adds notifications with unknown ids and marks known ones
// read when the incoming copy is read. A read flag never reverts.
func (s *Store) MergeNotifications(list []Notification) error {
	return s.apply("merge_notifications", func(st *State) error {
		index := make(map[string][]int, len(st.Notifications))
		for i, n := range st.Notifications {
			index[n.ID] = append(index[n.ID], i)
		}

		for _, n := range list {
			if n.ID == "" {
				continue
			}
			positions, ok := index[n.ID]
			if !ok {
				index[n.ID] = []int{len(st.Notifications)}
				st.Notifications = append(st.Notifications, n)
				continue
			}
			if n.Read {
				for _, i := range positions {
					st.Notifications[i].Read = true
				}
			}
		}
		return nil
	})
}

// Logout resets the session to its initial, unauthenticated value.
func (s *Store) Logout() error {
	return s.apply("logout", func(st *State) error {
		*st = initialState(st.Version)
		return nil
	})
}

func (s *Store) apply(action string, mutate func(st *State) error) error {
	s.mu.Lock()
	if err := mutate(&s.state); err != nil {
		s.mu.Unlock()
		return s.report(action, err)
	}
	s.state.Version++
	change := Change{Action: action, Version: s.state.Version}
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(change)
	}

	return nil
}

func (s *Store) report(action string, err error) error {
	if isReplay(err) {
		s.logger.Info("session action skipped", zap.String("action", action), zap.Error(err))
		return err
	}

	s.anomalies.Add(1)
	s.logger.Warn("session action rejected", zap.String("action", action), zap.Error(err))
	return err
}
