package session

import "errors"

var (
	ErrInvalidUser      = errors.New("invalid user")
	ErrEmptyID          = errors.New("empty id")
	ErrUnknownMatch     = errors.New("unknown match")
	ErrInvalidMatch     = errors.New("invalid match transition")
	ErrUnknownChat      = errors.New("unknown chat")
	ErrDuplicateMessage = errors.New("duplicate message")
)

// isReplay reports errors caused by an event delivered twice, which is expected
// around reconnects and is not an ordering anomaly.
func isReplay(err error) bool {
	return errors.Is(err, ErrDuplicateMessage)
}
