package session

import (
	"fmt"
	"time"
)

// UserKind is the discriminator of the User variant.
type UserKind string

const (
	KindCandidate UserKind = "candidate"
	KindRecruiter UserKind = "recruiter"
)

type JobType string

const (
	JobFullTime   JobType = "full-time"
	JobPartTime   JobType = "part-time"
	JobContract   JobType = "contract"
	JobInternship JobType = "internship"
	JobFreelance  JobType = "freelance"
)

type WorkMode string

const (
	WorkRemote WorkMode = "remote"
	WorkHybrid WorkMode = "hybrid"
	WorkOnSite WorkMode = "on-site"
)

type CompanySize string

const (
	SizeStartup    CompanySize = "startup"
	SizeSmall      CompanySize = "small"
	SizeMedium     CompanySize = "medium"
	SizeLarge      CompanySize = "large"
	SizeEnterprise CompanySize = "enterprise"
)

// User is the authenticated identity. Kind selects which of Profile (candidate)
// or Company (recruiter) carries the variant payload; consumers must switch on Kind.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Kind      UserKind  `json:"type"`
	Location  string    `json:"location"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`

	Profile *CandidateProfile `json:"profile,omitempty"`
	Company *Company          `json:"company,omitempty"`
}

type CandidateProfile struct {
	Title      string     `json:"title"`
	Bio        string     `json:"bio"`
	Skills     []string   `json:"skills"`
	Experience int        `json:"experience"`
	JobTypes   []JobType  `json:"jobType"`
	WorkModes  []WorkMode `json:"workMode"`
	SalaryMin  int        `json:"salaryMin"`
	SalaryMax  int        `json:"salaryMax"`
	Languages  []string   `json:"languages"`
	Education  string     `json:"education"`
	Portfolio  string     `json:"portfolio,omitempty"`
	LinkedIn   string     `json:"linkedin,omitempty"`
}

type Company struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Logo        string      `json:"logo,omitempty"`
	Industry    string      `json:"industry"`
	Size        CompanySize `json:"size"`
	Culture     []string    `json:"culture"`
	Description string      `json:"description"`
	Website     string      `json:"website,omitempty"`
}

// Validate checks that the variant payload agrees with the discriminator.
func (u *User) Validate() error {
	if u == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidUser)
	}
	if u.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidUser)
	}

	switch u.Kind {
	case KindCandidate:
		if u.Profile == nil {
			return fmt.Errorf("%w: candidate %q has no profile", ErrInvalidUser, u.ID)
		}
		if u.Company != nil {
			return fmt.Errorf("%w: candidate %q carries a company", ErrInvalidUser, u.ID)
		}
	case KindRecruiter:
		if u.Company == nil {
			return fmt.Errorf("%w: recruiter %q has no company", ErrInvalidUser, u.ID)
		}
		if u.Profile != nil {
			return fmt.Errorf("%w: recruiter %q carries a candidate profile", ErrInvalidUser, u.ID)
		}
	default:
		return fmt.Errorf("%w: unknown user type %q", ErrInvalidUser, u.Kind)
	}

	return nil
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Profile != nil {
		p := *u.Profile
		p.Skills = append([]string(nil), u.Profile.Skills...)
		p.JobTypes = append([]JobType(nil), u.Profile.JobTypes...)
		p.WorkModes = append([]WorkMode(nil), u.Profile.WorkModes...)
		p.Languages = append([]string(nil), u.Profile.Languages...)
		cp.Profile = &p
	}
	if u.Company != nil {
		c := *u.Company
		c.Culture = append([]string(nil), u.Company.Culture...)
		cp.Company = &c
	}
	return &cp
}
