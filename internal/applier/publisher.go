package applier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/pass"
	"github.com/specialistvlad/passgrid/internal/progress"
	"github.com/specialistvlad/passgrid/internal/simpass"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventApplied is the socket.io event emitted for every applied pass.
const EventApplied = "pass:applied"

const defaultConnectTimeout = 15 * time.Second

// Emitter sends one socket.io event.
type Emitter func(event string, args ...any)

// Resulter is implemented by passes that expose their collected value.
type Resulter interface {
	Result() cty.Value
}

// Publisher decorates an apply hook and broadcasts each successful apply to
// an editor endpoint.
type Publisher struct {
	emit Emitter
	next node.ApplyFunc
}

// NewPublisher wraps next; nil means Direct.
func NewPublisher(emit Emitter, next node.ApplyFunc) *Publisher {
	if next == nil {
		next = Direct
	}
	return &Publisher{emit: emit, next: next}
}

// Apply runs the wrapped hook, then emits EventApplied. Nothing is emitted
// when the wrapped hook fails.
func (p *Publisher) Apply(ctx context.Context, d pass.Descriptor, document string, token *progress.Token) error {
	if err := p.next(ctx, d, document, token); err != nil {
		return err
	}

	payload := map[string]any{
		"round":    token.ID(),
		"document": document,
		"pass":     string(d.ID()),
	}
	if r, ok := pass.Unwrap(d).(Resulter); ok {
		result, err := simpass.ToNative(r.Result())
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Result not publishable, sending without it.", "pass", d.ID(), "error", err)
		} else {
			payload["result"] = result
		}
	}
	p.emit(EventApplied, payload)
	return nil
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds the wait for the connect event. Zero means 15s.
	Timeout time.Duration
}

// Connection is a connected socket.io client.
type Connection struct {
	io *socket.Socket
}

// Connect opens a websocket socket.io connection and waits until the server
// accepted it.
func Connect(ctx context.Context, opts ConnectOptions) (*Connection, error) {
	logger := ctxlog.FromContext(ctx).With("url", opts.URL, "namespace", opts.Namespace)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse publish URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("publish URL %q must be absolute", opts.URL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	sopts := socket.DefaultOptions()
	sopts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	io := socket.NewManager(baseURL, sopts).Socket(opts.Namespace, sopts)

	connected := make(chan error, 1)
	signal := func(err error) {
		select {
		case connected <- err:
		default:
		}
	}
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to publish endpoint.", "sid", io.Id())
		signal(nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		signal(err)
	})

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Connection{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context canceled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

// Emit sends event with args.
func (c *Connection) Emit(event string, args ...any) {
	c.io.Emit(event, args...)
}

// Close disconnects the client.
func (c *Connection) Close() {
	c.io.Disconnect()
}
