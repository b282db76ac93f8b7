package api

import (
	"errors"
	"time"

	"github.com/spigell/swipe-sync/internal/session"
)

var (
	ErrEmptyTarget  = errors.New("target id is required")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

type Direction string

const (
	SwipeLeft  Direction = "left"
	SwipeRight Direction = "right"
)

// TargetType names what was swiped on.
type TargetType string

const (
	TargetCandidate TargetType = "candidate"
	TargetJob       TargetType = "job"
)

type JobOffer struct {
	ID           string           `json:"id"`
	CompanyID    string           `json:"companyId"`
	Company      session.Company  `json:"company"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Requirements []string         `json:"requirements"`
	Skills       []string         `json:"skills"`
	Experience   int              `json:"experience"`
	JobType      session.JobType  `json:"jobType"`
	WorkMode     session.WorkMode `json:"workMode"`
	Location     string           `json:"location"`
	SalaryMin    int              `json:"salaryMin"`
	SalaryMax    int              `json:"salaryMax"`
	Benefits     []string         `json:"benefits"`
	PostedAt     time.Time        `json:"postedAt"`
	IsActive     bool             `json:"isActive"`
}

type SwipeRequest struct {
	TargetID   string     `json:"targetId"`
	Direction  Direction  `json:"direction"`
	TargetType TargetType `json:"targetType"`
	// Key is sent as the Idempotency-Key header. A fresh one is generated when empty.
	Key string `json:"-"`
}

// SwipeResult carries the match the server created or updated, if any.
type SwipeResult struct {
	ID    string         `json:"id"`
	Match *session.Match `json:"match,omitempty"`
}

// Matched reports whether the swipe completed a mutual match.
func (r *SwipeResult) Matched() bool {
	return r != nil && r.Match != nil && r.Match.Status == session.MatchMatched
}

// Filters narrows candidate and job listings.
// param is the query key; slices are sent as repeated keys.
type Filters struct {
	Skills        []string `param:"skills"`
	JobTypes      []string `param:"jobType"`
	WorkModes     []string `param:"workMode"`
	Location      string   `param:"location"`
	MinExperience int      `param:"minExperience"`
	SalaryMin     int      `param:"salaryMin"`
	Limit         int      `param:"limit"`
	Page          int      `param:"page"`
}
