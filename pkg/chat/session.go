// Package chat implements the LiveAssist escalation protocol: requesting a
// live chat with a human agent, polling for events and state transitions,
// sending visitor lines and ending the chat.
//
// All mutable progress lives in a serializable State so the host process can
// persist it after every operation and reconstruct the session later with
// Resume, picking up exactly where it left off.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/config"
	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/transport"
)

// Session drives one escalation lifecycle against the chat service.
//
// A Session is not safe for concurrent self-invocation: every operation
// derives state-after-call from state-before-call, so callers must serialize
// operations per session. Two independent sessions are fine. No operation
// retries network failures; retry policy belongs to the caller, who must
// keep in mind that RequestChat, Poll and the send operations may have
// succeeded server-side despite a client-observed timeout.
type Session struct {
	state State

	tp               *transport.Client
	scheme           string
	discoveryBaseURL string
	contextDataHost  string
	contextDataPath  string
	logger           zerolog.Logger
}

type Option func(*Session)

// WithTransport replaces the transport client, mostly for tests.
func WithTransport(tp *transport.Client) Option {
	return func(s *Session) {
		s.tp = tp
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithAccountID overrides the configured account id for this session.
func WithAccountID(accountID string) Option {
	return func(s *Session) {
		s.state.AccountID = accountID
	}
}

// New creates a fresh session in the initial phase. The account id comes
// from the settings unless overridden with WithAccountID; the conversation
// domain is resolved lazily on the first domain-dependent call when the
// settings leave it empty.
func New(settings *config.Settings, opts ...Option) (*Session, error) {
	s := newSession(settings, opts...)
	if s.state.AccountID == "" {
		return nil, newError(KindConfiguration, "an account id is neither provided nor configured")
	}
	s.logger.Debug().Str("account_id", s.state.AccountID).Msg("new chat session")
	return s, nil
}

// Resume reconstructs a session from a blob produced by State. The whole
// in-memory state is replaced; there are no partial or merge semantics.
func Resume(settings *config.Settings, blob []byte, opts ...Option) (*Session, error) {
	s := newSession(settings, opts...)
	st, err := decodeState(blob)
	if err != nil {
		return nil, err
	}
	s.state = st
	s.logger.Debug().
		Str("account_id", s.state.AccountID).
		Str("phase", s.state.Phase.String()).
		Msg("resumed chat session")
	return s, nil
}

func newSession(settings *config.Settings, opts ...Option) *Session {
	s := &Session{
		state:            newInitialState(settings.AccountID, settings.ConversationDomain),
		scheme:           settings.Scheme,
		discoveryBaseURL: settings.DiscoveryBaseURL,
		contextDataHost:  settings.ContextDataHost,
		contextDataPath:  settings.ContextDataPath,
		logger:           log.Logger,
	}
	if s.scheme == "" {
		s.scheme = config.DefaultScheme
	}
	if s.discoveryBaseURL == "" {
		s.discoveryBaseURL = config.DefaultDiscoveryBaseURL
	}
	if s.contextDataPath == "" {
		s.contextDataPath = config.DefaultContextDataPath
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tp == nil {
		appKey := settings.AppKey
		if appKey == "" {
			appKey = config.DefaultAppKey
		}
		s.tp = transport.New(appKey,
			transport.WithTimeout(settings.RequestTimeout),
			transport.WithLogger(s.logger))
	}
	return s
}

// State serializes the session's entire mutable state. Hand the blob to
// Resume to continue the session, possibly in another process.
func (s *Session) State() ([]byte, error) {
	return encodeState(s.state)
}

// Phase returns the current session phase.
func (s *Session) Phase() Phase {
	return s.state.Phase
}

// Availability is the service's answer to an availability check.
type Availability struct {
	Availability bool `json:"availability"`
}

// AvailabilityOptions narrows an availability check to a skill.
type AvailabilityOptions struct {
	Skill string
}

// GetAvailability reports whether an agent is available to take a chat. It
// is a pure read with no phase effect and is always safe to re-issue.
func (s *Session) GetAvailability(ctx context.Context, opts AvailabilityOptions) (*Availability, error) {
	if err := s.resolveDomain(ctx); err != nil {
		return nil, err
	}
	query := s.tp.AuthQuery()
	if opts.Skill != "" {
		query.Set("skill", opts.Skill)
	}
	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    s.accountURL("/chat/availability.json"),
		Query:  query,
	})
	if err != nil {
		return nil, wrapError(KindTransport, err, "error getting chat availability")
	}
	if resp.Status != http.StatusOK {
		return nil, newError(KindProtocol, "error getting chat availability: %d", resp.Status)
	}
	var body Availability
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, wrapError(KindProtocol, err, "could not decode availability response")
	}
	return &body, nil
}

// RequestSpec configures an escalation request.
type RequestSpec struct {
	Skill       string
	Agent       string
	Transcript  *Transcript
	VisitorName string
	// GetContextData, when set, is invoked after the chat is established to
	// obtain a signed context payload, which is then posted to the context
	// ingestion endpoint. A nil result or empty context data skips the post.
	GetContextData ContextDataFunc
}

// RequestChat escalates to a live agent. In strict sequence it submits the
// chat request, retrieves the chat details, optionally sets the visitor's
// display name and optionally posts caller context data, short-circuiting on
// the first failure.
//
// Any prior chat artifacts are discarded up front: resuming into a stale,
// possibly unterminated chat is unsafe, so every new request starts from a
// clean state. A failure after the service accepted the request triggers a
// best-effort attempt to end the partially created chat before the original
// error is surfaced.
func (s *Session) RequestChat(ctx context.Context, spec RequestSpec) error {
	s.logger.Debug().Str("phase", s.state.Phase.String()).Msg("requesting chat")
	if err := s.resolveDomain(ctx); err != nil {
		return err
	}

	s.state.clean()

	if err := s.submitChatRequest(ctx, spec); err != nil {
		s.state.clean()
		return err
	}

	if err := s.establishChat(ctx, spec); err != nil {
		s.abandonChat(ctx)
		return err
	}
	return nil
}

// Poll returns buffered chat data when a retrieval has already produced
// some, fetching a new batch otherwise. Buffered data exists because chat
// detail retrieval during escalation can yield events before the caller's
// first explicit poll; those are returned first, never lost and never
// delivered twice.
//
// Consuming a termination event moves the session to PhaseEndDelivered;
// after that Poll reports a state error without any network I/O.
func (s *Session) Poll(ctx context.Context) (*PollResult, error) {
	if s.state.Phase == PhaseEndDelivered {
		return nil, errChatNotInProgress()
	}
	if s.state.Buffered.Fresh {
		return s.consumeBufferedData(), nil
	}
	if s.state.NextLink == "" {
		return nil, errChatNotInProgress()
	}
	if err := s.retrieveChat(ctx); err != nil {
		return nil, err
	}
	return s.consumeBufferedData(), nil
}

// PollResult carries one retrieval's worth of consumed events and info.
type PollResult struct {
	Events []Event      `json:"events"`
	Info   InfoSnapshot `json:"info"`
}

// AddLine posts a visitor message line. The phase never changes here: only
// events observed through Poll advance it, since the service, not the
// client, is authoritative on termination.
func (s *Session) AddLine(ctx context.Context, line string) error {
	if s.state.Phase == PhaseEndDelivered || s.state.Links == nil {
		return errChatNotInProgress()
	}
	return s.postChatEvent(ctx, eventDetails{Type: "line", Text: line})
}

// EndChat posts an end-of-chat state event. The session still only reaches
// PhaseEndDelivered once the resulting termination event comes back through
// Poll.
func (s *Session) EndChat(ctx context.Context) error {
	if s.state.Phase == PhaseEndDelivered || s.state.Links == nil {
		return errChatNotInProgress()
	}
	return s.postChatEvent(ctx, eventDetails{Type: "state", State: StateEnded})
}

// resolveDomain looks up the conversation domain for the account against the
// discovery endpoint and caches it in the session state. Service domains do
// not change within a session's life, so resolution happens at most once.
func (s *Session) resolveDomain(ctx context.Context) error {
	if s.state.ConversationDomain != "" {
		return nil
	}
	s.logger.Debug().Str("account_id", s.state.AccountID).Msg("resolving conversation domain")
	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodGet,
		URL: fmt.Sprintf("%s/api/account/%s/service/conversationVep/baseURI.json?version=1.0",
			s.discoveryBaseURL, s.state.AccountID),
	})
	if err != nil {
		return wrapError(KindTransport, err, "error retrieving conversation domain")
	}
	if resp.Status != http.StatusOK {
		return newError(KindProtocol, "error retrieving conversation domain: %d", resp.Status)
	}
	var body baseURIResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return wrapError(KindProtocol, err, "could not decode conversation domain response")
	}
	if body.BaseURI == "" {
		return newError(KindProtocol, "conversation domain response has no baseURI")
	}
	s.state.ConversationDomain = body.BaseURI
	return nil
}

func (s *Session) accountURL(path string) string {
	return fmt.Sprintf("%s://%s/api/account/%s%s", s.scheme, s.state.ConversationDomain, s.state.AccountID, path)
}

func (s *Session) submitChatRequest(ctx context.Context, spec RequestSpec) error {
	preChat, err := spec.Transcript.preChat()
	if err != nil {
		return err
	}
	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    s.accountURL("/chat/request.json"),
		Query:  s.tp.AuthQuery(),
		Body: chatRequestBody{
			Request: chatRequestDetails{
				Skill:        spec.Skill,
				Agent:        spec.Agent,
				PreChatLines: preChat,
			},
		},
	})
	if err != nil {
		return wrapError(KindTransport, err, "error requesting chat")
	}
	if resp.Status != http.StatusCreated {
		return newError(KindProtocol, "error requesting chat: %d", resp.Status)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return newError(KindProtocol, "chat request response has no location header")
	}
	s.state.Phase = PhaseRequested
	s.state.NextLink = location
	return nil
}

// establishChat runs the post-acceptance escalation steps in order.
func (s *Session) establishChat(ctx context.Context, spec RequestSpec) error {
	if err := s.retrieveChat(ctx); err != nil {
		return err
	}
	if spec.VisitorName != "" {
		if err := s.setVisitorName(ctx, spec.VisitorName); err != nil {
			return err
		}
	}
	return s.retrieveThenPostContextData(ctx, spec)
}

// abandonChat is the best-effort compensating cleanup for a failed
// escalation: end the partially created server-side chat when the events
// link is already known, then clear local state. A failing end post is
// logged and swallowed so the original escalation error stays the one
// surfaced.
func (s *Session) abandonChat(ctx context.Context) {
	if s.state.Links != nil {
		if err := s.postChatEvent(ctx, eventDetails{Type: "state", State: StateEnded}); err != nil {
			s.logger.Warn().Err(err).Msg("could not end partially created chat")
		}
	}
	s.state.clean()
}

// retrieveChat fetches the current poll link, refreshes the stored links and
// info, buffers the translated events and advances the phase to
// PhaseInfoObtained.
func (s *Session) retrieveChat(ctx context.Context) error {
	pollURL, err := s.tp.Qualify(s.state.NextLink)
	if err != nil {
		return wrapError(KindProtocol, err, "could not qualify poll link")
	}
	s.logger.Debug().Str("url", pollURL).Msg("retrieving chat info")
	resp, err := s.tp.Do(ctx, transport.Request{Method: http.MethodGet, URL: pollURL})
	if err != nil {
		return wrapError(KindTransport, err, "error retrieving chat info")
	}
	if resp.Status != http.StatusOK {
		return newError(KindProtocol, "error retrieving chat info: %d", resp.Status)
	}
	var body pollResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return wrapError(KindProtocol, err, "could not decode chat info response")
	}

	links, nextLink, err := extractLinks(body.Chat)
	if err != nil {
		return err
	}

	events, _ := translateEvents(body.Chat.Events, s.logger)

	info := &Info{
		AgentName:   body.Chat.Info.AgentName,
		AgentTyping: body.Chat.Info.AgentTyping,
		ChatTimeout: body.Chat.Info.ChatTimeout,
		LastUpdate:  body.Chat.Info.LastUpdate,
		StartTime:   body.Chat.Info.StartTime,
		RTSessionID: body.Chat.Info.RTSessionID.String(),
	}

	s.state.Phase = PhaseInfoObtained
	s.state.NextLink = nextLink
	s.state.Info = info
	s.state.Links = links
	s.state.Buffered.Events = append(s.state.Buffered.Events, events...)
	s.state.Buffered.Info = snapshotInfo(info)
	s.state.Buffered.Fresh = true
	return nil
}

// consumeBufferedData atomically detaches the buffer. The termination check
// happens here rather than at retrieval time: the phase only advances once
// the end event has actually been handed to the caller, which is what makes
// its delivery exactly-once.
func (s *Session) consumeBufferedData() *PollResult {
	result := &PollResult{
		Events: s.state.Buffered.Events,
		Info:   s.state.Buffered.Info,
	}
	s.state.Buffered = emptyBuffer()
	if hasEndEvent(result.Events) {
		s.state.Phase = PhaseEndDelivered
	}
	return result
}

func extractLinks(body pollChat) (*Links, string, error) {
	nextLink, err := linkAt(body.Link, chatLinkNextPoll, "next poll")
	if err != nil {
		return nil, "", err
	}
	events, err := linkAt(body.Link, chatLinkEvents, "send event")
	if err != nil {
		return nil, "", err
	}
	visitorName, err := linkAt(body.Info.Link, infoLinkVisitorName, "visitor name")
	if err != nil {
		return nil, "", err
	}
	transcript, err := linkAt(body.Link, chatLinkTranscript, "transcript request")
	if err != nil {
		return nil, "", err
	}
	transcriptWithSubject, err := linkAt(body.Link, chatLinkTranscriptWithSubject, "transcript with subject request")
	if err != nil {
		return nil, "", err
	}
	exitSurvey, err := linkAt(body.Link, chatLinkExitSurvey, "exit survey")
	if err != nil {
		return nil, "", err
	}
	customVariables, err := linkAt(body.Link, chatLinkCustomVariables, "custom variables")
	if err != nil {
		return nil, "", err
	}
	nextEventPoll, err := linkAt(body.Events.Link, eventsLinkNextPoll, "next event poll")
	if err != nil {
		return nil, "", err
	}
	return &Links{
		Events:                events,
		VisitorName:           visitorName,
		Transcript:            transcript,
		TranscriptWithSubject: transcriptWithSubject,
		ExitSurvey:            exitSurvey,
		CustomVariables:       customVariables,
		NextEventPoll:         nextEventPoll,
	}, nextLink, nil
}

func snapshotInfo(info *Info) InfoSnapshot {
	name := info.AgentName
	if name == "" {
		name = "unknown"
	}
	return InfoSnapshot{
		AgentName:     name,
		IsAgentTyping: info.AgentTyping == "typing",
		ChatTimeout:   info.ChatTimeout,
		LastUpdate:    info.LastUpdate,
		StartTime:     info.StartTime,
	}
}

// setVisitorName posts the visitor's display name to its dedicated link.
// The override header signals PUT semantics to the service.
func (s *Session) setVisitorName(ctx context.Context, visitorName string) error {
	nameURL, err := s.tp.Qualify(s.state.Links.VisitorName)
	if err != nil {
		return wrapError(KindProtocol, err, "could not qualify visitor name link")
	}
	s.logger.Debug().Str("visitor_name", visitorName).Msg("setting visitor name")
	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    nameURL,
		Header: http.Header{"X-Http-Method-Override": {"PUT"}},
		Body:   visitorNameBody{VisitorName: visitorName},
	})
	if err != nil {
		return wrapError(KindTransport, err, "error setting visitor name")
	}
	if resp.Status != http.StatusOK {
		return newError(KindProtocol, "error setting visitor name: %d", resp.Status)
	}
	return nil
}

func (s *Session) postChatEvent(ctx context.Context, event eventDetails) error {
	eventsURL, err := s.tp.Qualify(s.state.Links.Events)
	if err != nil {
		return wrapError(KindProtocol, err, "could not qualify events link")
	}
	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    eventsURL,
		Body:   eventBody{Event: event},
	})
	if err != nil {
		return wrapError(KindTransport, err, "error posting event")
	}
	if resp.Status != http.StatusCreated {
		return newError(KindProtocol, "error posting event: %d", resp.Status)
	}
	return nil
}

func (s *Session) retrieveThenPostContextData(ctx context.Context, spec RequestSpec) error {
	if spec.GetContextData == nil {
		return nil
	}
	contextID := ""
	if s.state.Info != nil {
		contextID = s.state.Info.RTSessionID
	}
	contextSpec, err := spec.GetContextData(ctx, contextID)
	if err != nil {
		return wrapError(KindValidation, err, "error returned from context data callback")
	}
	if contextSpec == nil || contextSpec.ContextData == "" {
		return nil
	}
	return s.postContextData(ctx, *contextSpec)
}
