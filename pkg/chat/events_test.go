package chat

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestTranslateEvents_SuppressesSystemEcho(t *testing.T) {
	raw := rawEvents{Event: eventList{
		{Type: "line", Time: "1", Source: "visitor", Text: json.RawMessage(`"hello"`)},
		{Type: "line", Time: "2", Source: "system", SystemMessageID: intPtr(0), Text: json.RawMessage(`"echo"`)},
		{Type: "line", Time: "3", Source: "agent", Text: json.RawMessage(`"hi there"`)},
	}}

	events, ended := translateEvents(raw, zerolog.Nop())
	require.False(t, ended)
	require.Len(t, events, 2)
	require.Equal(t, "hello", events[0].Text)
	require.Equal(t, "visitor", events[0].Source)
	require.Equal(t, "hi there", events[1].Text)
	require.Equal(t, "agent", events[1].Source)
}

func TestTranslateEvents_SystemLineWithNonZeroMessageIDPassesThrough(t *testing.T) {
	raw := rawEvents{Event: eventList{
		{Type: "line", Source: "system", SystemMessageID: intPtr(3), Text: json.RawMessage(`"agent joined"`)},
	}}

	events, _ := translateEvents(raw, zerolog.Nop())
	require.Len(t, events, 1)
	require.Equal(t, "agent joined", events[0].Text)
}

func TestTranslateEvents_EndedStateSetsFlag(t *testing.T) {
	raw := rawEvents{Event: eventList{
		{Type: "state", Time: "1", State: "waiting"},
		{Type: "state", Time: "2", State: StateEnded},
	}}

	events, ended := translateEvents(raw, zerolog.Nop())
	require.True(t, ended)
	require.Len(t, events, 2)
	require.Equal(t, EventTypeState, events[0].Type)
	require.Equal(t, "waiting", events[0].State)
	require.Equal(t, StateEnded, events[1].State)
}

func TestTranslateEvents_UnknownTypeDropped(t *testing.T) {
	raw := rawEvents{Event: eventList{
		{Type: "typing-indicator"},
		{Type: "line", Source: "agent", Text: json.RawMessage(`"still here"`)},
	}}

	events, ended := translateEvents(raw, zerolog.Nop())
	require.False(t, ended)
	require.Len(t, events, 1)
	require.Equal(t, EventTypeLine, events[0].Type)
}

func TestEventList_DecodesSingleObject(t *testing.T) {
	var raw rawEvents
	err := json.Unmarshal([]byte(`{"event":{"@type":"state","state":"waiting"}}`), &raw)
	require.NoError(t, err)
	require.Len(t, raw.Event, 1)
	require.Equal(t, "waiting", raw.Event[0].State)
}

func TestEventList_DecodesArray(t *testing.T) {
	var raw rawEvents
	err := json.Unmarshal([]byte(`{"event":[{"@type":"line","text":"a"},{"@type":"line","text":"b"}]}`), &raw)
	require.NoError(t, err)
	require.Len(t, raw.Event, 2)
}

func TestRawEvent_TextCoercion(t *testing.T) {
	ev := rawEvent{Text: json.RawMessage(`42`)}
	require.Equal(t, "42", ev.text())

	ev = rawEvent{Text: json.RawMessage(`"plain"`)}
	require.Equal(t, "plain", ev.text())

	ev = rawEvent{}
	require.Equal(t, "", ev.text())
}

func TestHasEndEvent(t *testing.T) {
	require.False(t, hasEndEvent(nil))
	require.False(t, hasEndEvent([]Event{{Type: EventTypeLine, Text: "ended"}}))
	require.True(t, hasEndEvent([]Event{
		{Type: EventTypeLine, Text: "bye"},
		{Type: EventTypeState, State: StateEnded},
	}))
}
