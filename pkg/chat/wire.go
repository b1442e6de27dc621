package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Wire shapes for the chat service's JSON bodies. All authenticated calls
// carry v=1 and the application key as query parameters; that part lives in
// the transport client.

// baseURIResponse mirrors the domain discovery endpoint.
type baseURIResponse struct {
	BaseURI string `json:"baseURI"`
}

// chatRequestBody mirrors POST /chat/request.json.
type chatRequestBody struct {
	Request chatRequestDetails `json:"request"`
}

type chatRequestDetails struct {
	Skill        string        `json:"skill,omitempty"`
	Agent        string        `json:"agent,omitempty"`
	PreChatLines *preChatLines `json:"preChatLines,omitempty"`
}

type preChatLines struct {
	Line []string `json:"line"`
}

// eventBody mirrors POST {eventsLink}.json.
type eventBody struct {
	Event eventDetails `json:"event"`
}

type eventDetails struct {
	Type  string `json:"@type"`
	Text  string `json:"text,omitempty"`
	State string `json:"state,omitempty"`
}

// visitorNameBody mirrors POST {visitorNameLink}.json, sent with the PUT
// override header.
type visitorNameBody struct {
	VisitorName string `json:"visitorName"`
}

// contextDataBody mirrors POST {contextHost}{contextPath}.
type contextDataBody struct {
	AccountID   string `json:"accountId"`
	ContextData string `json:"contextData"`
}

// pollResponse mirrors GET {pollLink}.json.
type pollResponse struct {
	Chat pollChat `json:"chat"`
}

type pollChat struct {
	Events rawEvents  `json:"events"`
	Info   rawInfo    `json:"info"`
	Link   []wireLink `json:"link"`
}

type wireLink struct {
	Rel  string `json:"@rel,omitempty"`
	Href string `json:"@href"`
}

// rawEvents holds the downstream event list plus its own link list. The
// service sends a bare object instead of an array when a single event is
// pending, so the event field gets a tolerant decoder.
type rawEvents struct {
	Event eventList  `json:"event"`
	Link  []wireLink `json:"link"`
}

type eventList []rawEvent

func (l *eventList) UnmarshalJSON(data []byte) error {
	var many []rawEvent
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one rawEvent
	if err := json.Unmarshal(data, &one); err != nil {
		return errors.Wrap(err, "could not decode event list")
	}
	*l = eventList{one}
	return nil
}

type rawEvent struct {
	Type            string          `json:"@type"`
	Time            string          `json:"time"`
	State           string          `json:"state"`
	Source          string          `json:"source"`
	SystemMessageID *int            `json:"systemMessageId"`
	Text            json.RawMessage `json:"text"`
}

// text coerces the event text to a string regardless of the JSON type the
// service used for it.
func (ev *rawEvent) text() string {
	if len(ev.Text) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(ev.Text, &s); err == nil {
		return s
	}
	return string(ev.Text)
}

type rawInfo struct {
	AgentName   string      `json:"agentName"`
	AgentTyping string      `json:"agentTyping"`
	ChatTimeout int         `json:"chatTimeout"`
	LastUpdate  string      `json:"lastUpdate"`
	StartTime   string      `json:"startTime"`
	RTSessionID json.Number `json:"rtSessionId"`
	Link        []wireLink  `json:"link"`
}

// The poll response identifies session sub-resources positionally. The
// indices below are a fixed vendor contract; resolving them through linkAt
// keeps a shape change from surfacing as an out-of-bounds fault.
const (
	chatLinkEvents                = 1
	chatLinkNextPoll              = 3
	chatLinkTranscript            = 4
	chatLinkTranscriptWithSubject = 5
	chatLinkExitSurvey            = 6
	chatLinkCustomVariables       = 7

	infoLinkVisitorName = 1
	eventsLinkNextPoll  = 1
)

func linkAt(links []wireLink, index int, name string) (string, error) {
	if index >= len(links) || links[index].Href == "" {
		return "", newError(KindProtocol, "poll response is missing the %s link (index %d)", name, index)
	}
	return links[index].Href, nil
}
