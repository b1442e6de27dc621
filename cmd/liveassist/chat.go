package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/chat"
	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/persistence/sessionstore"
)

func newChatCommand() *cobra.Command {
	var (
		skill        string
		agent        string
		visitorName  string
		stateDB      string
		sessionKey   string
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Escalate to a live agent and chat from the terminal",
		Long: `Requests a live chat with an agent and bridges it to the terminal.
Lines typed on stdin are sent to the agent; /end ends the chat.

Session state is persisted after every operation, so an interrupted chat can
be picked up again by running the command with the same session key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dsn, err := sessionstore.SQLiteDSNForFile(stateDB)
			if err != nil {
				return err
			}
			store, err := sessionstore.NewSQLiteStore(dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			session, err := loadOrCreateSession(ctx, store, sessionKey)
			if err != nil {
				return err
			}

			if session.Phase() == chat.PhaseInitial {
				if visitorName == "" && isatty.IsTerminal(os.Stdin.Fd()) {
					ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
					visitorName, err = ui.Ask("Visitor name", &input.Options{
						Default: "Visitor",
						Loop:    false,
					})
					if err != nil {
						return errors.Wrap(err, "could not read visitor name")
					}
				}
				err = session.RequestChat(ctx, chat.RequestSpec{
					Skill:       skill,
					Agent:       agent,
					VisitorName: visitorName,
				})
				if saveErr := saveSession(ctx, store, sessionKey, session); saveErr != nil && err == nil {
					err = saveErr
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "chat requested, waiting for an agent")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "resuming chat (%s)\n", session.Phase())
			}

			return runChatLoop(ctx, cmd, session, store, sessionKey, pollInterval)
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "skill to target")
	cmd.Flags().StringVar(&agent, "agent", "", "agent to target")
	cmd.Flags().StringVar(&visitorName, "visitor-name", "", "visitor display name (prompted for when omitted)")
	cmd.Flags().StringVar(&stateDB, "state-db", "liveassist-sessions.db", "sqlite file for session state")
	cmd.Flags().StringVar(&sessionKey, "session-key", "default", "key the session state is stored under")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 3*time.Second, "how often to poll for new events")
	return cmd
}

func loadOrCreateSession(ctx context.Context, store sessionstore.Store, key string) (*chat.Session, error) {
	blob, err := store.Load(ctx, key)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return chat.New(settings)
	}
	if err != nil {
		return nil, err
	}
	session, err := chat.Resume(settings, blob)
	if err != nil {
		log.Warn().Err(err).Str("session_key", key).Msg("stored session state is unusable, starting fresh")
		return chat.New(settings)
	}
	return session, nil
}

func saveSession(ctx context.Context, store sessionstore.Store, key string, session *chat.Session) error {
	blob, err := session.State()
	if err != nil {
		return err
	}
	return store.Save(ctx, key, blob)
}

// runChatLoop bridges stdin and the poll cadence onto the session. All
// session operations happen on the loop goroutine; the session is not safe
// for concurrent use.
func runChatLoop(ctx context.Context, cmd *cobra.Command, session *chat.Session, store sessionstore.Store, sessionKey string, pollInterval time.Duration) error {
	return runChatLoopWith(ctx, cmd.OutOrStdout(), os.Stdin, session, store, sessionKey, pollInterval)
}

func runChatLoopWith(ctx context.Context, out io.Writer, in io.ReadCloser, session *chat.Session, store sessionstore.Store, sessionKey string, pollInterval time.Duration) error {
	lines := make(chan string)

	eg, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return nil
			}
		}
		// The loop goroutine closes the input on its way out; that read
		// failure is the expected shutdown, not an error.
		if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		// Closing the input unblocks the scanner goroutine once the chat is
		// over.
		defer func() { _ = in.Close() }()

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		input := lines
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line, ok := <-input:
				if !ok {
					// stdin EOF: ask the service to end the chat once, then
					// wait for the termination event on the poll cadence. A
					// nil channel never selects, so the closed channel cannot
					// re-trigger this branch.
					input = nil
					if err := session.EndChat(ctx); err != nil && !chat.IsKind(err, chat.KindState) {
						return err
					}
					continue
				}
				if err := handleInputLine(ctx, session, line); err != nil {
					return err
				}
				if err := saveSession(ctx, store, sessionKey, session); err != nil {
					return err
				}
			case <-ticker.C:
				result, err := session.Poll(ctx)
				if err != nil {
					return err
				}
				if err := saveSession(ctx, store, sessionKey, session); err != nil {
					return err
				}
				printEvents(out, result)
				if session.Phase() == chat.PhaseEndDelivered {
					fmt.Fprintln(out, "chat ended")
					return nil
				}
			}
		}
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleInputLine(ctx context.Context, session *chat.Session, line string) error {
	switch {
	case strings.TrimSpace(line) == "":
		return nil
	case strings.TrimSpace(line) == "/end":
		return session.EndChat(ctx)
	default:
		return session.AddLine(ctx, line)
	}
}

func printEvents(out io.Writer, result *chat.PollResult) {
	for _, ev := range result.Events {
		switch ev.Type {
		case chat.EventTypeLine:
			fmt.Fprintf(out, "%s> %s\n", ev.Source, ev.Text)
		case chat.EventTypeState:
			fmt.Fprintf(out, "* chat state: %s\n", ev.State)
		}
	}
	if result.Info.IsAgentTyping {
		fmt.Fprintf(out, "* %s is typing\n", result.Info.AgentName)
	}
}
