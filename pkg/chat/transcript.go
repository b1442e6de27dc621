package chat

import (
	"fmt"
	"time"
)

// Transcript collects prior-conversation lines handed to the agent as
// pre-chat context during escalation.
type Transcript struct {
	lines []string
}

// TranscriptEntry is one prior conversation line. IsBot marks lines authored
// by the automated side of the conversation.
type TranscriptEntry struct {
	Timestamp time.Time
	SrcName   string
	Line      string
	IsBot     bool
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// AddLine validates and appends an entry. Bot authors get a leading + marker
// in the rendered line.
func (t *Transcript) AddLine(entry TranscriptEntry) error {
	if entry.Timestamp.IsZero() {
		return newError(KindValidation, "transcript entry needs a timestamp")
	}
	if entry.SrcName == "" {
		return newError(KindValidation, "transcript entry needs a source name")
	}
	if entry.Line == "" {
		return newError(KindValidation, "transcript entry needs a line")
	}
	marker := ""
	if entry.IsBot {
		marker = "+"
	}
	t.lines = append(t.lines, fmt.Sprintf("%s %s%s: %s",
		entry.Timestamp.UTC().Format(time.RFC3339), marker, entry.SrcName, entry.Line))
	return nil
}

// Lines returns the rendered transcript lines in insertion order.
func (t *Transcript) Lines() []string {
	return append([]string(nil), t.lines...)
}

// preChat converts the transcript to its wire shape. Empty transcripts are
// omitted from the chat request entirely.
func (t *Transcript) preChat() (*preChatLines, error) {
	if t == nil || len(t.lines) == 0 {
		return nil, nil
	}
	for _, line := range t.lines {
		if line == "" {
			return nil, newError(KindValidation, "transcript line should be non-empty")
		}
	}
	return &preChatLines{Line: t.Lines()}, nil
}
