package filtering

import (
	"context"
	"strconv"
	"strings"

	"github.com/spigell/swipe-sync/internal/api"
	"github.com/spigell/swipe-sync/internal/matching"
	"github.com/spigell/swipe-sync/internal/session"
)

type inactiveFilter struct {
	include bool
}

// NewInactive creates a filter that removes job offers no longer accepting applicants.
func NewInactive(include bool) Filter {
	return &inactiveFilter{include: include}
}

func (f *inactiveFilter) Name() string { return "inactive" }

func (f *inactiveFilter) Disable(string) { f.include = true }

func (f *inactiveFilter) IsEnabled() bool { return !f.include }

func (f *inactiveFilter) Validate() error { return nil }

func (f *inactiveFilter) Apply(_ context.Context, cards []matching.Card) ([]matching.Card, Step, error) {
	kept, dropped := keep(cards, func(c matching.Card) bool {
		return c.Job == nil || c.Job.IsActive
	})
	return kept, stepOf(len(cards), kept, dropped), nil
}

func (f *inactiveFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Details: map[string]string{"include_inactive": strconv.FormatBool(f.include)},
	}
}

type alreadyMatchedFilter struct {
	store  MatchSource
	viewer *session.User
}

// NewAlreadyMatched creates a filter that hides targets the viewer already has a match with.
func NewAlreadyMatched(store MatchSource, viewer *session.User) Filter {
	return &alreadyMatchedFilter{store: store, viewer: viewer}
}

func (f *alreadyMatchedFilter) Name() string { return "already_matched" }

func (f *alreadyMatchedFilter) Disable(string) {}

func (f *alreadyMatchedFilter) IsEnabled() bool { return f.store != nil }

func (f *alreadyMatchedFilter) Validate() error { return nil }

func (f *alreadyMatchedFilter) Apply(_ context.Context, cards []matching.Card) ([]matching.Card, Step, error) {
	seen := make(map[string]struct{})
	for _, m := range f.store.Snapshot().Matches {
		if m.JobOfferID != "" {
			seen[string(api.TargetJob)+"/"+m.JobOfferID] = struct{}{}
		}
		if f.viewer == nil || f.viewer.Kind == session.KindRecruiter {
			seen[string(api.TargetCandidate)+"/"+m.CandidateID] = struct{}{}
		}
	}

	kept, dropped := keep(cards, func(c matching.Card) bool {
		_, ok := seen[string(c.Type)+"/"+c.ID]
		return !ok
	})
	return kept, stepOf(len(cards), kept, dropped), nil
}

type excludedCompaniesFilter struct {
	companies map[string]struct{}
	names     []string
}

// NewExcludedCompanies creates a filter that removes job offers by company id or name.
func NewExcludedCompanies(companies []string) Filter {
	f := &excludedCompaniesFilter{companies: make(map[string]struct{}, len(companies))}
	for _, c := range companies {
		if c = strings.TrimSpace(c); c != "" {
			f.companies[strings.ToLower(c)] = struct{}{}
			f.names = append(f.names, c)
		}
	}
	return f
}

func (f *excludedCompaniesFilter) Name() string { return "excluded_companies" }

func (f *excludedCompaniesFilter) Disable(string) {}

func (f *excludedCompaniesFilter) IsEnabled() bool { return true }

func (f *excludedCompaniesFilter) Validate() error { return nil }

func (f *excludedCompaniesFilter) Apply(_ context.Context, cards []matching.Card) ([]matching.Card, Step, error) {
	if len(f.companies) == 0 {
		return cards, stepOf(len(cards), cards, nil), nil
	}

	kept, dropped := keep(cards, func(c matching.Card) bool {
		if c.Job == nil {
			return true
		}
		for _, key := range []string{c.Job.CompanyID, c.Job.Company.ID, c.Job.Company.Name} {
			if _, ok := f.companies[strings.ToLower(key)]; ok && key != "" {
				return false
			}
		}
		return true
	})
	return kept, stepOf(len(cards), kept, dropped), nil
}

func (f *excludedCompaniesFilter) Status() Status {
	details := map[string]string{}
	if len(f.names) > 0 {
		details["companies"] = strings.Join(f.names, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
