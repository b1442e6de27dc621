package chat

import (
	"github.com/rs/zerolog"
)

// EventType discriminates normalized chat events.
type EventType string

const (
	// EventTypeState is a session state change reported by the service.
	EventTypeState EventType = "state"
	// EventTypeLine is a chat message line.
	EventTypeLine EventType = "line"
)

// StateEnded is the state label the service uses for session termination.
const StateEnded = "ended"

// Event is one normalized chat event handed back from Poll, in the order the
// service reported it.
type Event struct {
	Type   EventType `json:"type"`
	Time   string    `json:"time,omitempty"`
	State  string    `json:"state,omitempty"`
	Text   string    `json:"text,omitempty"`
	Source string    `json:"source,omitempty"`
}

// translateEvents converts the vendor's raw polled event list into the
// normalized sequence, preserving input order, and reports whether a
// termination event was seen.
//
// Lines echoed by the synthetic system author with message id 0 are a
// service artifact and get suppressed. Unknown event types are logged and
// dropped so new vendor event types cannot break the client.
func translateEvents(raw rawEvents, logger zerolog.Logger) ([]Event, bool) {
	ended := false
	events := []Event{}
	for i := range raw.Event {
		ev := &raw.Event[i]
		switch ev.Type {
		case "state":
			if ev.State == StateEnded {
				ended = true
			}
			events = append(events, Event{Type: EventTypeState, Time: ev.Time, State: ev.State})
		case "line":
			if ev.Source == "system" && ev.SystemMessageID != nil && *ev.SystemMessageID == 0 {
				continue
			}
			events = append(events, Event{Type: EventTypeLine, Time: ev.Time, Text: ev.text(), Source: ev.Source})
		default:
			logger.Warn().Str("event_type", ev.Type).Msg("dropping unhandled event type")
		}
	}
	return events, ended
}

// hasEndEvent reports whether a consumed event set contains a termination
// state event.
func hasEndEvent(events []Event) bool {
	for _, ev := range events {
		if ev.Type == EventTypeState && ev.State == StateEnded {
			return true
		}
	}
	return false
}
