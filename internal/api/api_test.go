package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/session"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("unexpected user agent %q", got)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return New(zap.NewNop(), srv.URL+"/api/", "tok", time.Second)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/me" {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, session.User{
			ID:      "c1",
			Kind:    session.KindCandidate,
			Name:    "Ana",
			Profile: &session.CandidateProfile{Title: "Go developer", Skills: []string{"go"}},
		})
	})

	user, err := c.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.ID != "c1" || user.Kind != session.KindCandidate || user.Profile == nil {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := user.Validate(); err != nil {
		t.Fatalf("decoded user must be valid: %v", err)
	}
}

func TestJobOffersDecodesGzipAndSendsFilters(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if !reflect.DeepEqual(q["skills"], []string{"go", "k8s"}) || q.Get("location") != "Paris" {
			t.Errorf("unexpected query %v", q)
		}
		if _, ok := q["minExperience"]; ok {
			t.Errorf("zero filters must be omitted: %v", q)
		}

		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode([]JobOffer{
			{ID: "j1", Title: "Backend", IsActive: true, Company: session.Company{ID: "co1", Name: "Acme"}},
			{ID: "j2", Title: "Frontend"},
		})
	})

	offers, err := c.JobOffers(context.Background(), &Filters{Skills: []string{"go", "k8s"}, Location: "Paris"})
	if err != nil {
		t.Fatalf("job offers: %v", err)
	}
	if len(offers) != 2 || offers[0].Company.Name != "Acme" || !offers[0].IsActive || offers[1].IsActive {
		t.Fatalf("unexpected offers %+v", offers)
	}
}

func TestSwipeSendsIdempotencyKey(t *testing.T) {
	t.Parallel()

	keys := make(chan string, 2)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/swipes" {
			http.NotFound(w, r)
			return
		}
		var req SwipeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode swipe: %v", err)
		}
		if req.TargetID != "j1" || req.Direction != SwipeRight || req.TargetType != TargetJob {
			t.Errorf("unexpected swipe %+v", req)
		}
		keys <- r.Header.Get("Idempotency-Key")

		writeJSON(t, w, SwipeResult{ID: "s1", Match: &session.Match{
			ID: "m1", Status: session.MatchMatched, CandidateLiked: true, RecruiterLiked: true,
		}})
	})

	result, err := c.Swipe(context.Background(), SwipeRequest{TargetID: "j1", Direction: SwipeRight, TargetType: TargetJob})
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if !result.Matched() || result.Match.ID != "m1" {
		t.Fatalf("expected match m1, got %+v", result)
	}
	if _, err := uuid.Parse(<-keys); err != nil {
		t.Fatalf("generated key is not a uuid: %v", err)
	}

	if _, err := c.Swipe(context.Background(), SwipeRequest{TargetID: "j1", Direction: SwipeRight, TargetType: TargetJob, Key: "fixed"}); err != nil {
		t.Fatalf("swipe with key: %v", err)
	}
	if got := <-keys; got != "fixed" {
		t.Fatalf("expected caller key to be kept, got %q", got)
	}

	if _, err := c.Swipe(context.Background(), SwipeRequest{}); !errors.Is(err, ErrEmptyTarget) {
		t.Fatalf("expected ErrEmptyTarget, got %v", err)
	}
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/matches":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/api/notifications/n1/read":
			if r.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", r.Method)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	_, err := c.Matches(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError || statusErr.Body != "boom" {
		t.Fatalf("expected 500 status error, got %v", err)
	}

	if _, err := c.Chats(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := c.MarkNotificationRead(context.Background(), "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unauthorized := New(zap.NewNop(), c.BaseURL, "wrong", time.Second)
	if _, err := unauthorized.Notifications(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestChatMessages(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/chat1/messages" {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, []session.Message{
			{ID: "msg1", ChatID: "chat1", Content: "hi"},
			{ID: "msg2", ChatID: "chat1", Content: "hello"},
		})
	})

	messages, err := c.ChatMessages(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("chat messages: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "hello" {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		filters *Filters
		want    string
	}{
		{name: "nil", filters: nil, want: ""},
		{name: "empty", filters: &Filters{}, want: ""},
		{
			name:    "repeated slices and ints",
			filters: &Filters{WorkModes: []string{"remote", "hybrid"}, MinExperience: 3, Limit: 20},
			want:    "limit=20&minExperience=3&workMode=remote&workMode=hybrid",
		},
		{name: "string", filters: &Filters{Location: "Lyon"}, want: "location=Lyon"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := buildParams(tc.filters).Encode(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
