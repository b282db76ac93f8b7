package realtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/swipe-sync/internal/events"
	"github.com/spigell/swipe-sync/internal/session"
)

const sendMessageType = "send_message"

type inbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sendPayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// Dispatcher is the subset of session actions driven by server events.
type Dispatcher interface {
	AppendMessage(chatID string, msg session.Message) error
	AddMatch(match session.Match) error
	AddNotification(n session.Notification) error
}

type handler struct {
	kind  events.Kind
	apply func(d Dispatcher, payload any) (any, error)
}

// handlers maps every inbound event type to exactly one session action.
// Supporting a new event type means adding one entry here.
var handlers = map[string]handler{
	"new_message": on(events.KindNewMessage, func(d Dispatcher, m session.Message) error {
		if m.ChatID == "" || m.ID == "" {
			return fmt.Errorf("%w: message needs id and chatId", ErrMalformedFrame)
		}
		return d.AppendMessage(m.ChatID, m)
	}),
	"new_match": on(events.KindNewMatch, func(d Dispatcher, m session.Match) error {
		if m.ID == "" {
			return fmt.Errorf("%w: match needs id", ErrMalformedFrame)
		}
		return d.AddMatch(m)
	}),
	"notification": on(events.KindNotification, func(d Dispatcher, n session.Notification) error {
		if n.ID == "" {
			return fmt.Errorf("%w: notification needs id", ErrMalformedFrame)
		}
		return d.AddNotification(n)
	}),
}

func on[T any](kind events.Kind, apply func(Dispatcher, T) error) handler {
	return handler{
		kind: kind,
		apply: func(d Dispatcher, payload any) (any, error) {
			var v T
			if err := decodePayload(payload, &v); err != nil {
				return nil, err
			}
			if err := apply(d, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

func decodePayload(payload any, target any) error {
	if _, ok := payload.(map[string]any); !ok {
		return fmt.Errorf("%w: payload is %T, want object", ErrMalformedFrame, payload)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     target,
		TagName:    "json",
		DecodeHook: timeHook,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// timeHook accepts RFC 3339 strings and epoch milliseconds for time fields.
func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, v)
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return data, nil
	}
}

func encodeSend(chatID, content string) ([]byte, error) {
	return json.Marshal(outbound{
		Type:    sendMessageType,
		Payload: sendPayload{ChatID: chatID, Content: content},
	})
}
