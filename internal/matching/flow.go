package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/swipe-sync/internal/api"
	"github.com/spigell/swipe-sync/internal/gesture"
	"github.com/spigell/swipe-sync/internal/session"
)

var ErrDeckDone = errors.New("no cards left")

type Swiper interface {
	Swipe(ctx context.Context, req api.SwipeRequest) (*api.SwipeResult, error)
}

type MatchRecorder interface {
	AddMatch(match session.Match) error
}

// Outcome is the result of one completed swipe.
type Outcome struct {
	Card      Card
	Direction api.Direction
	// Match is set when the server reported a mutual match.
	Match *session.Match
}

// Flow binds a gesture engine to a deck. A right swipe likes the current card,
// a left swipe passes it. A failed swipe leaves the card current so it can be
// retried with the same idempotency key.
type Flow struct {
	deck   *Deck
	engine *gesture.Engine
	swiper Swiper
	store  MatchRecorder
	logger *zap.Logger

	keys map[string]string
}

func NewFlow(deck *Deck, swiper Swiper, store MatchRecorder, threshold float64, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Flow{
		deck:   deck,
		engine: gesture.New(gesture.Options{Threshold: threshold}),
		swiper: swiper,
		store:  store,
		logger: logger,
		keys:   make(map[string]string),
	}
}

func (f *Flow) Deck() *Deck { return f.deck }

// Engine exposes the gesture state for rendering the dragged card.
func (f *Flow) Engine() *gesture.Engine { return f.engine }

func (f *Flow) Press(x, y float64) { f.engine.Start(x, y) }

func (f *Flow) Drag(x, y float64) { f.engine.Move(x, y) }

// Release ends the gesture. swiped is false when the drag stayed within the
// threshold and the card snapped back.
func (f *Flow) Release(ctx context.Context) (out Outcome, swiped bool, err error) {
	switch f.engine.End() {
	case gesture.Right:
		out, err = f.Like(ctx)
		return out, true, err
	case gesture.Left:
		out, err = f.Pass(ctx)
		return out, true, err
	default:
		return Outcome{}, false, nil
	}
}

func (f *Flow) Like(ctx context.Context) (Outcome, error) {
	return f.swipe(ctx, api.SwipeRight)
}

func (f *Flow) Pass(ctx context.Context) (Outcome, error) {
	return f.swipe(ctx, api.SwipeLeft)
}

func (f *Flow) swipe(ctx context.Context, direction api.Direction) (Outcome, error) {
	card, ok := f.deck.Current()
	if !ok {
		return Outcome{}, ErrDeckDone
	}

	out := Outcome{Card: card, Direction: direction}
	log := f.logger.With(zap.String("target_id", card.ID), zap.String("direction", string(direction)))

	key, ok := f.keys[card.ID]
	if !ok {
		key = uuid.NewString()
		f.keys[card.ID] = key
	}

	result, err := f.swiper.Swipe(ctx, api.SwipeRequest{
		TargetID:   card.ID,
		Direction:  direction,
		TargetType: card.Type,
		Key:        key,
	})
	if err != nil {
		return out, fmt.Errorf("swipe %s: %w", card.ID, err)
	}

	delete(f.keys, card.ID)
	f.deck.Advance()

	if result.Match != nil {
		if err := f.store.AddMatch(*result.Match); err != nil {
			log.Warn("server match not recorded", zap.String("match_id", result.Match.ID), zap.Error(err))
		} else if result.Matched() {
			out.Match = result.Match
			log.Info("mutual match", zap.String("match_id", result.Match.ID))
		}
	}

	log.Debug("swipe recorded", zap.Int("remaining", f.deck.Remaining()))
	return out, nil
}
