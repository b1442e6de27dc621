package chat

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Phase is the coarse-grained stage of an escalation session. It only moves
// forward through the sequence below; the single exception is the reset back
// to PhaseInitial when a new RequestChat supersedes a prior chat.
type Phase int

const (
	// PhaseInitial: no chat requested, or a prior chat fully cleared.
	PhaseInitial Phase = iota
	// PhaseRequested: the service accepted a chat request; the poll link is
	// known but chat details have not been fetched yet.
	PhaseRequested
	// PhaseInfoObtained: chat details have been fetched at least once;
	// polling and sending are possible.
	PhaseInfoObtained
	// PhaseEndDelivered: an end-of-chat event has been handed to the caller;
	// no further send or poll is allowed.
	PhaseEndDelivered
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseRequested:
		return "requested"
	case PhaseInfoObtained:
		return "info-obtained"
	case PhaseEndDelivered:
		return "end-delivered"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Links are the opaque session sub-resource URLs handed out by the service.
// They are populated once per successful chat retrieval and stay stable
// until the session ends.
type Links struct {
	Events                string `json:"eventsLink"`
	VisitorName           string `json:"visitorNameLink"`
	Transcript            string `json:"transcriptRequestLink"`
	TranscriptWithSubject string `json:"transcriptWithSubjectRequestLink"`
	ExitSurvey            string `json:"exitSurveyLink"`
	CustomVariables       string `json:"customVariablesLink"`
	NextEventPoll         string `json:"nextEventPollLink"`
}

// Info is the last-fetched chat metadata.
type Info struct {
	AgentName   string `json:"agentName,omitempty"`
	AgentTyping string `json:"agentTyping,omitempty"`
	ChatTimeout int    `json:"chatTimeout,omitempty"`
	LastUpdate  string `json:"lastUpdate,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	RTSessionID string `json:"rtSessionId,omitempty"`
}

// InfoSnapshot is the normalized agent view handed back alongside consumed
// events.
type InfoSnapshot struct {
	AgentName     string `json:"agentName,omitempty"`
	IsAgentTyping bool   `json:"isAgentTyping,omitempty"`
	ChatTimeout   int    `json:"chatTimeout,omitempty"`
	LastUpdate    string `json:"lastUpdate,omitempty"`
	StartTime     string `json:"startTime,omitempty"`
}

// BufferedData holds exactly one retrieval's worth of unconsumed results.
// Fresh is true exactly when a retrieval has produced events or info not yet
// handed to the caller; fresh data is never discarded silently.
type BufferedData struct {
	Events []Event      `json:"events"`
	Info   InfoSnapshot `json:"info"`
	Fresh  bool         `json:"isFresh"`
}

// State is the sole unit of persistence for a session: everything a resumed
// process needs to pick up exactly where the previous one left off. Callers
// treat it as an opaque blob produced by Session.State and accepted whole by
// Resume.
type State struct {
	Phase              Phase        `json:"phase"`
	AccountID          string       `json:"accountId"`
	ConversationDomain string       `json:"conversationDomain,omitempty"`
	NextLink           string       `json:"chatNextLink,omitempty"`
	Info               *Info        `json:"info,omitempty"`
	Links              *Links       `json:"chatLinks,omitempty"`
	Buffered           BufferedData `json:"bufferedData"`
}

func newInitialState(accountID, domain string) State {
	return State{
		Phase:              PhaseInitial,
		AccountID:          accountID,
		ConversationDomain: domain,
		Buffered:           emptyBuffer(),
	}
}

func emptyBuffer() BufferedData {
	return BufferedData{Events: []Event{}}
}

// clean resets the state to PhaseInitial, discarding every artifact of a
// prior chat. The account id and a resolved domain survive the reset.
func (s *State) clean() {
	s.Phase = PhaseInitial
	s.NextLink = ""
	s.Info = nil
	s.Links = nil
	s.Buffered = emptyBuffer()
}

func encodeState(s State) ([]byte, error) {
	blob, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode session state")
	}
	return blob, nil
}

func decodeState(blob []byte) (State, error) {
	if len(blob) == 0 {
		return State{}, newError(KindValidation, "session state blob is empty")
	}
	var s State
	if err := json.Unmarshal(blob, &s); err != nil {
		return State{}, wrapError(KindValidation, err, "could not decode session state blob")
	}
	if s.Buffered.Events == nil {
		s.Buffered.Events = []Event{}
	}
	return s, nil
}
