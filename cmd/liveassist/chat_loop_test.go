package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/chat"
	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/config"
	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/persistence/sessionstore"
)

// loopService is a minimal chat backend for exercising the CLI loop: it
// accepts a chat request, serves polls and counts posted end-of-chat events.
// Polls report the chat as ended once an end event has been posted, or from
// the start when endedFromStart is set.
type loopService struct {
	srv            *httptest.Server
	endPosts       atomic.Int64
	endedFromStart bool
}

func newLoopService(t *testing.T, endedFromStart bool) *loopService {
	svc := &loopService{endedFromStart: endedFromStart}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/account/acc/chat/request.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", svc.srv.URL+"/visit/1/chat/1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/visit/1/chat/1.json", svc.servePoll)
	mux.HandleFunc("/next.json", svc.servePoll)
	mux.HandleFunc("/events.json", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Event struct {
				Type  string `json:"@type"`
				State string `json:"state"`
			} `json:"event"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Event.Type == "state" && body.Event.State == "ended" {
			svc.endPosts.Add(1)
		}
		w.WriteHeader(http.StatusCreated)
	})
	svc.srv = httptest.NewServer(mux)
	t.Cleanup(svc.srv.Close)
	return svc
}

func (svc *loopService) servePoll(w http.ResponseWriter, r *http.Request) {
	events := "[]"
	if svc.endedFromStart || svc.endPosts.Load() > 0 {
		events = `[{"@type":"state","time":"1","state":"ended"}]`
	}
	base := svc.srv.URL
	links := make([]string, 8)
	for i := range links {
		links[i] = fmt.Sprintf(`{"@href":"%s/extra/%d"}`, base, i)
	}
	links[1] = fmt.Sprintf(`{"@href":"%s/events"}`, base)
	links[3] = fmt.Sprintf(`{"@href":"%s/next"}`, base)
	fmt.Fprintf(w,
		`{"chat":{"events":{"event":%s,"link":[{"@href":""},{"@href":"%s/ev-next"}]},"info":{"agentName":"Elena","link":[{"@href":""},{"@href":"%s/name"}]},"link":[%s]}}`,
		events, base, base, strings.Join(links, ","))
}

func (svc *loopService) newSession(t *testing.T) *chat.Session {
	settings := &config.Settings{
		AccountID:          "acc",
		AppKey:             "test-key",
		ConversationDomain: strings.TrimPrefix(svc.srv.URL, "http://"),
		Scheme:             "http",
		RequestTimeout:     2 * time.Second,
	}
	session, err := chat.New(settings, chat.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, session.RequestChat(context.Background(), chat.RequestSpec{}))
	return session
}

// blockingInput blocks reads until closed, then fails them the way a closed
// *os.File does.
type blockingInput struct {
	closed chan struct{}
	once   sync.Once
}

func newBlockingInput() *blockingInput {
	return &blockingInput{closed: make(chan struct{})}
}

func (b *blockingInput) Read(p []byte) (int, error) {
	<-b.closed
	return 0, os.ErrClosed
}

func (b *blockingInput) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestChatLoop_StdinEOFEndsChatOnce(t *testing.T) {
	svc := newLoopService(t, false)
	session := svc.newSession(t)
	out := &bytes.Buffer{}

	// Immediate EOF on input: the loop must post exactly one end event and
	// then wait for the termination to come back through a poll.
	err := runChatLoopWith(context.Background(), out, io.NopCloser(strings.NewReader("")),
		session, sessionstore.NewMemoryStore(), "k", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), svc.endPosts.Load())
	require.Contains(t, out.String(), "chat ended")
	require.Equal(t, chat.PhaseEndDelivered, session.Phase())
}

func TestChatLoop_CleanExitAfterTermination(t *testing.T) {
	svc := newLoopService(t, true)
	session := svc.newSession(t)
	out := &bytes.Buffer{}

	// The input never delivers a line; the loop ends when the termination
	// event arrives, closes the input and must still exit cleanly.
	err := runChatLoopWith(context.Background(), out, newBlockingInput(),
		session, sessionstore.NewMemoryStore(), "k", 5*time.Millisecond)
	require.NoError(t, err)
	require.Contains(t, out.String(), "chat ended")
	require.Equal(t, int64(0), svc.endPosts.Load())
}
