// Package matching presents swipe cards and turns completed gestures into
// like/pass swipes. Match decisions belong to the server; the flow only
// records what the server reports.
package matching

import (
	"fmt"
	"strings"

	"github.com/spigell/swipe-sync/internal/ai"
	"github.com/spigell/swipe-sync/internal/api"
	"github.com/spigell/swipe-sync/internal/session"
)

// Card is one swipeable profile. Exactly one of Job or Candidate is set,
// selected by Type.
type Card struct {
	ID        string
	Type      api.TargetType
	Job       *api.JobOffer
	Candidate *session.User
	// Assessment is attached by the AI filter step when it runs.
	Assessment *ai.Assessment
}

func (c Card) Title() string {
	switch c.Type {
	case api.TargetJob:
		if c.Job != nil {
			return fmt.Sprintf("%s at %s", c.Job.Title, c.Job.Company.Name)
		}
	case api.TargetCandidate:
		if c.Candidate != nil {
			if c.Candidate.Profile != nil && c.Candidate.Profile.Title != "" {
				return fmt.Sprintf("%s, %s", c.Candidate.Name, c.Candidate.Profile.Title)
			}
			return c.Candidate.Name
		}
	}
	return c.ID
}

// Details lists human-readable facts shown under the title.
func (c Card) Details() []string {
	var out []string
	switch {
	case c.Job != nil:
		j := c.Job
		out = append(out,
			fmt.Sprintf("Location: %s (%s)", j.Location, j.WorkMode),
			fmt.Sprintf("Type: %s", j.JobType),
			fmt.Sprintf("Salary: %d-%d", j.SalaryMin, j.SalaryMax),
		)
		if len(j.Skills) > 0 {
			out = append(out, "Skills: "+strings.Join(j.Skills, ", "))
		}
		if j.Experience > 0 {
			out = append(out, fmt.Sprintf("Experience: %d+ years", j.Experience))
		}
	case c.Candidate != nil:
		u := c.Candidate
		out = append(out, "Location: "+u.Location)
		if p := u.Profile; p != nil {
			if len(p.Skills) > 0 {
				out = append(out, "Skills: "+strings.Join(p.Skills, ", "))
			}
			out = append(out, fmt.Sprintf("Experience: %d years", p.Experience))
			if p.SalaryMax > 0 {
				out = append(out, fmt.Sprintf("Expected salary: %d-%d", p.SalaryMin, p.SalaryMax))
			}
		}
	}
	if a := c.Assessment; a != nil {
		if a.Error != "" {
			out = append(out, "AI: unavailable ("+a.Error+")")
		} else {
			out = append(out, fmt.Sprintf("AI: score %.2f, %s", a.Score, a.Reason))
		}
	}
	return out
}

// Target describes the card for the AI advisor.
func (c Card) Target() ai.Target {
	t := ai.Target{ID: c.ID, Kind: string(c.Type)}
	if c.Job != nil {
		t.Payload = c.Job
	} else if c.Candidate != nil {
		t.Payload = candidatePayload(c.Candidate)
	}
	return t
}

func candidatePayload(u *session.User) map[string]any {
	return map[string]any{
		"name":     u.Name,
		"location": u.Location,
		"profile":  u.Profile,
	}
}

func CardsFromJobs(offers []api.JobOffer) []Card {
	cards := make([]Card, 0, len(offers))
	for i := range offers {
		job := offers[i]
		cards = append(cards, Card{ID: job.ID, Type: api.TargetJob, Job: &job})
	}
	return cards
}

func CardsFromCandidates(users []session.User) []Card {
	cards := make([]Card, 0, len(users))
	for i := range users {
		u := users[i]
		cards = append(cards, Card{ID: u.ID, Type: api.TargetCandidate, Candidate: &u})
	}
	return cards
}

// Deck is an ordered set of cards with a cursor. It is not safe for
// concurrent use.
type Deck struct {
	cards []Card
	index int
}

func NewDeck(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

func (d *Deck) Current() (Card, bool) {
	if d.Done() {
		return Card{}, false
	}
	return d.cards[d.index], true
}

// Advance moves past the current card. It is a no-op on a finished deck.
func (d *Deck) Advance() {
	if !d.Done() {
		d.index++
	}
}

func (d *Deck) Reset() { d.index = 0 }

func (d *Deck) Done() bool { return d.index >= len(d.cards) }

func (d *Deck) Index() int { return d.index }

func (d *Deck) Len() int { return len(d.cards) }

func (d *Deck) Remaining() int { return len(d.cards) - d.index }
