// Package portal is the JSON-over-unix-socket client for the desktop consent
// service. It implements both domain.ConsentPortal and domain.FrameSource;
// protocol-level failures are mapped onto the domain error taxonomy so the
// broker never sees transport details.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/captura-dev/captura/internal/domain"
)

const (
	// baseURL is a placeholder host; the transport dials the unix socket.
	baseURL = "http://portal"

	defaultRequestTimeout = 30 * time.Second
)

// ClientInterface is what the broker consumes; *Client is the production
// implementation.
type ClientInterface interface {
	domain.ConsentPortal
	domain.FrameSource
}

type Client struct {
	httpClient *http.Client
	socketPath string
}

type ClientOption func(*Client)

// WithSocketPath points the client at a non-default portal socket.
func WithSocketPath(path string) ClientOption {
	return func(c *Client) {
		c.socketPath = path
	}
}

// WithRequestTimeout caps the transport-level request time. Per-operation
// deadlines still come from the caller's context.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a portal client. The default socket lives in the user's
// runtime directory.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		socketPath: DefaultSocketPath(),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}

	for _, option := range options {
		option(c)
	}

	c.httpClient.Transport = &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
	}

	return c
}

// DefaultSocketPath resolves the portal socket location from the runtime
// directory, mirroring where the consent service binds.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/captura-portal.sock"
	}
	return fmt.Sprintf("/run/user/%d/captura-portal.sock", os.Getuid())
}

// OpenSession negotiates one capture session. The portal decides per mode
// whether to show interactive UI, restore headlessly, or hand out a one-shot
// transient session.
func (c *Client) OpenSession(ctx context.Context, params domain.OpenSessionParams) (*domain.Session, error) {
	req := openSessionRequest{
		Mode:    string(params.Mode),
		Filter:  sourceFilterPayload{Kind: string(params.Filter.Kind)},
		Persist: string(params.Persist),
	}
	if params.Credential != nil {
		req.RestoreSecret = params.Credential.Secret
	}

	var resp openSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", req, &resp); err != nil {
		return nil, err
	}

	session := &domain.Session{
		Handle:  resp.Handle,
		Streams: make([]domain.StreamDescriptor, 0, len(resp.Streams)),
	}
	for _, s := range resp.Streams {
		session.Streams = append(session.Streams, domain.StreamDescriptor{
			ID:     s.ID,
			Kind:   domain.SourceKind(s.Kind),
			Width:  s.Width,
			Height: s.Height,
		})
	}
	if resp.IssuedCredential != nil {
		session.IssuedCredential = &domain.RestoreCredential{
			Secret:   resp.IssuedCredential.Secret,
			Kind:     domain.SourceKind(resp.IssuedCredential.Kind),
			Persist:  domain.PersistMode(resp.IssuedCredential.Persist),
			IssuedAt: time.Unix(resp.IssuedCredential.IssuedAtUnix, 0).UTC(),
		}
	}
	return session, nil
}

// CloseSession releases a session. Closing an unknown handle is not an error.
func (c *Client) CloseSession(ctx context.Context, handle string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/v1/sessions/"+handle, nil, nil)
	if errors.Is(err, errSessionGone) {
		return nil
	}
	return err
}

// AwaitFrame blocks until the portal delivers one frame for the stream, or
// ctx expires.
func (c *Client) AwaitFrame(ctx context.Context, handle string, stream domain.StreamDescriptor) (*domain.RawFrame, error) {
	var resp framePayload
	path := fmt.Sprintf("/v1/sessions/%s/streams/%s/frame", handle, stream.ID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return &domain.RawFrame{
		Width:       resp.Width,
		Height:      resp.Height,
		PixelFormat: domain.PixelFormat(resp.PixelFormat),
		Data:        resp.Data,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode portal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build portal request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return mapStatusError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode portal response: %w", err)
	}
	return nil
}

// errSessionGone marks a 404 on session release; closing twice is benign.
var errSessionGone = errors.New("session already released")

func mapTransportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		// Connection refused, missing socket, reset: the portal is not there.
		return fmt.Errorf("%w: %v", domain.ErrPortalUnavailable, err)
	}
}

func mapStatusError(resp *http.Response) error {
	var payload errorPayload
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)

	switch payload.Code {
	case "denied":
		return fmt.Errorf("%w: %s", domain.ErrConsentDenied, payload.Message)
	case "restore_rejected":
		return fmt.Errorf("%w: %s", domain.ErrRestoreRejected, payload.Message)
	case "timeout":
		return fmt.Errorf("%w: %s", domain.ErrTimeout, payload.Message)
	case "unavailable":
		return fmt.Errorf("%w: %s", domain.ErrPortalUnavailable, payload.Message)
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: portal returned %d", domain.ErrConsentDenied, resp.StatusCode)
	case http.StatusGone, http.StatusConflict:
		return fmt.Errorf("%w: portal returned %d", domain.ErrRestoreRejected, resp.StatusCode)
	case http.StatusNotFound:
		return errSessionGone
	case http.StatusGatewayTimeout:
		return fmt.Errorf("%w: portal returned %d", domain.ErrTimeout, resp.StatusCode)
	default:
		return fmt.Errorf("%w: portal returned %d", domain.ErrPortalUnavailable, resp.StatusCode)
	}
}
