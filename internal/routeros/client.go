// Package routeros runs ping commands on MikroTik routers through the
// RouterOS management API.
package routeros

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hazz-dev/pingproxy/internal/config"
	"github.com/hazz-dev/pingproxy/internal/probe"
)

// ProbeCount is the number of echo requests sent per ping command.
const ProbeCount = 3

// Session is an authenticated API session with one router.
type Session interface {
	// Run sends a command sentence and returns the attributes of every
	// reply the router produced before completing it.
	Run(words ...string) ([]map[string]string, error)
	Close() error
}

// Prober runs one ping from a router. *Client implements it.
type Prober interface {
	Probe(ctx context.Context, req Request) (*Reply, error)
}

var _ Prober = (*Client)(nil)

// Dialer opens API sessions. It abstracts the network for testability.
type Dialer interface {
	Dial(ctx context.Context, address, username, password string) (Session, error)
}

// ConnectError reports that the router could not be reached, refused the
// login, or rejected a command.
type ConnectError struct {
	Router string
	Op     string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Router, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Request names the router to ping from and the address to ping.
type Request struct {
	Router  string
	Target  string
	PPPUser string
}

// Reply holds the raw probe records of one ping command.
type Reply struct {
	Records    []probe.Record
	Connection *probe.ConnectionInfo
}

// Client probes targets from routers using a fixed set of credentials.
type Client struct {
	cfg    config.RouterConfig
	dialer Dialer
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Client that talks to routers over the RouterOS API.
// Pass nil logger to use the default logger.
func New(cfg config.RouterConfig, logger *slog.Logger) *Client {
	return NewWithDialer(cfg, &apiDialer{}, logger)
}

// NewWithDialer creates a Client with a custom dialer (for testing).
func NewWithDialer(cfg config.RouterConfig, dialer Dialer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		now:    time.Now,
	}
}

// Probe opens a session to req.Router, pings req.Target ProbeCount times and
// closes the session. Every failure to talk to the router is a *ConnectError.
// There is exactly one attempt per call.
func (c *Client) Probe(ctx context.Context, req Request) (*Reply, error) {
	if c.cfg.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout.Duration)
		defer cancel()
	}

	addr := net.JoinHostPort(req.Router, strconv.Itoa(c.cfg.Port))
	c.logger.Debug("connecting to router", "router", addr, "user", c.cfg.Username)

	sess, err := c.dialer.Dial(ctx, addr, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return nil, &ConnectError{Router: addr, Op: "connect", Err: contextCause(ctx, err)}
	}
	defer sess.Close()

	replies, err := sess.Run("/ping", "=address="+req.Target, "=count="+strconv.Itoa(ProbeCount))
	if err != nil {
		return nil, &ConnectError{Router: addr, Op: "ping", Err: contextCause(ctx, err)}
	}
	c.logger.Debug("ping finished", "router", addr, "target", req.Target, "replies", len(replies))

	reply := &Reply{Records: make([]probe.Record, 0, len(replies))}
	for _, re := range replies {
		rtt, ok := re["time"]
		if !ok {
			reply.Records = append(reply.Records, probe.Record{})
			continue
		}
		reply.Records = append(reply.Records, probe.Record{
			Succeeded: true,
			RTTMillis: probe.ParseMillis(rtt),
		})
	}

	if req.PPPUser != "" {
		info, err := c.connectionInfo(sess, req.PPPUser)
		if err != nil {
			c.logger.Warn("looking up pppoe interface", "router", addr, "user", req.PPPUser, "error", err)
		}
		reply.Connection = info
	}

	return reply, nil
}

// contextCause prefers the context error once the deadline has passed, since
// the network error it produced ("i/o timeout", "use of closed network
// connection") says less about what happened.
func contextCause(ctx context.Context, err error) error {
	// The connection deadline equals the context deadline, so a read can fail
	// a moment before ctx.Err() is set.
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", context.DeadlineExceeded)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("timed out: %w", ctxErr)
		}
		return ctxErr
	}
	return err
}
