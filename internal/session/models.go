package session

import "time"

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchMatched  MatchStatus = "matched"
	MatchRejected MatchStatus = "rejected"
)

type NotificationType string

const (
	NotificationMatch   NotificationType = "match"
	NotificationMessage NotificationType = "message"
	NotificationView    NotificationType = "view"
)

// View is the active screen tag.
type View string

const (
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
	ViewMatching  View = "matching"
	ViewChat      View = "chat"
	ViewProfile   View = "profile"
)

// Match asserts mutual interest between a candidate and a recruiter.
type Match struct {
	ID             string      `json:"id"`
	CandidateID    string      `json:"candidateId"`
	RecruiterID    string      `json:"recruiterId"`
	JobOfferID     string      `json:"jobOfferId,omitempty"`
	Status         MatchStatus `json:"status"`
	CandidateLiked bool        `json:"candidateLiked"`
	RecruiterLiked bool        `json:"recruiterLiked"`
	CreatedAt      time.Time   `json:"createdAt"`
	ChatID         string      `json:"chatId,omitempty"`
}

// Mutual reports whether both parties liked each other.
func (m Match) Mutual() bool {
	return m.CandidateLiked && m.RecruiterLiked
}

// MatchUpdate carries the fields of a partial match update. Nil fields are left untouched.
type MatchUpdate struct {
	Status         *MatchStatus
	CandidateLiked *bool
	RecruiterLiked *bool
	JobOfferID     *string
	ChatID         *string
}

func (u MatchUpdate) apply(m Match) Match {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.CandidateLiked != nil {
		m.CandidateLiked = *u.CandidateLiked
	}
	if u.RecruiterLiked != nil {
		m.RecruiterLiked = *u.RecruiterLiked
	}
	if u.JobOfferID != nil {
		m.JobOfferID = *u.JobOfferID
	}
	if u.ChatID != nil {
		m.ChatID = *u.ChatID
	}
	return m
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Chat owns an ordered, append-only list of messages.
type Chat struct {
	ID           string    `json:"id"`
	MatchID      string    `json:"matchId"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LastMessage is derived from the message list and is never stored.
func (c *Chat) LastMessage() (Message, bool) {
	if c == nil || len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Unread counts messages not yet read that were sent by someone other than userID.
func (c *Chat) Unread(userID string) int {
	if c == nil {
		return 0
	}
	count := 0
	for _, m := range c.Messages {
		if !m.Read && m.SenderID != userID {
			count++
		}
	}
	return count
}

// HasMessage reports whether a message with id is already in the chat.
func (c *Chat) HasMessage(id string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *Chat) clone() *Chat {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
