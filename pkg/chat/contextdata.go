package chat

import (
	"context"
	"net/http"
	"os"

	"github.com/CBA-LAD365/liveassist-botsdk-go/pkg/transport"
)

// ContextDataSpec describes an out-of-band signed payload correlating the
// chat session with external caller context. It is posted to the context
// ingestion endpoint, not to the chat service itself.
//
// ContextDataCertificate controls TLS trust for that post: "accept" disables
// verification, any other non-empty value is a PEM blob or a filesystem path
// to one, used as a custom trust anchor.
type ContextDataSpec struct {
	ContextData            string
	ContextDataCertificate string
	ContextDataHost        string
}

// ContextDataFunc is the caller-supplied callback invoked with a
// session-correlation identifier during escalation. Returning a nil spec or
// one with no context data makes the context post a no-op success.
type ContextDataFunc func(ctx context.Context, contextID string) (*ContextDataSpec, error)

func (s *Session) postContextData(ctx context.Context, spec ContextDataSpec) error {
	host := spec.ContextDataHost
	if host == "" {
		s.logger.Debug().
			Str("configured_host", s.contextDataHost).
			Msg("no supplied context data host, falling back to configured host")
		host = s.contextDataHost
	}
	if host == "" {
		return newError(KindConfiguration, "context data host is neither set nor configured")
	}

	trust, err := trustForCertificate(spec.ContextDataCertificate)
	if err != nil {
		return err
	}

	resp, err := s.tp.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    "https://" + host + s.contextDataPath,
		Body:   contextDataBody{AccountID: s.state.AccountID, ContextData: spec.ContextData},
		Trust:  trust,
	})
	if err != nil {
		return wrapError(KindTransport, err, "error posting context data")
	}
	if resp.Status != http.StatusCreated {
		return newError(KindProtocol, "error posting context data: %d", resp.Status)
	}
	return nil
}

// trustForCertificate resolves the certificate field of a context data spec
// into a per-call trust override. A value that is not a readable file is
// treated as an inline PEM blob.
func trustForCertificate(cert string) (*transport.Trust, error) {
	if cert == "" {
		return nil, nil
	}
	if cert == "accept" {
		return &transport.Trust{InsecureSkipVerify: true}, nil
	}
	if pem, err := os.ReadFile(cert); err == nil {
		return &transport.Trust{CA: pem}, nil
	}
	return &transport.Trust{CA: []byte(cert)}, nil
}
