package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/rosctl/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle of one Session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint is the addressing and credential record for one router.
type Endpoint struct {
	Name     string
	Host     string
	Port     int
	Username string
	Password string
}

func (e Endpoint) Address() string {
	port := e.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// Label names the endpoint in logs.
func (e Endpoint) Label() string {
	if strings.TrimSpace(e.Name) != "" {
		return e.Name
	}
	return e.Address()
}

// Conn is an authenticated command channel.
type Conn interface {
	Execute(ctx context.Context, words ...string) (Response, error)
	Close() error
}

// Dialer opens fresh authenticated connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Response is the collected reply to one command.
type Response struct {
	Rows []protocol.Attrs
	Done protocol.Attrs
}

// Client dials and authenticates sessions against one endpoint.
type Client struct {
	endpoint Endpoint
	cfg      Config
}

func NewClient(endpoint Endpoint, cfg Config) (*Client, error) {
	if strings.TrimSpace(endpoint.Host) == "" {
		return nil, ErrHostRequired
	}
	if endpoint.Port <= 0 {
		endpoint.Port = DefaultPort
		if cfg.TLS.Enabled {
			endpoint.Port = DefaultTLSPort
		}
	}
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	return &Client{endpoint: endpoint, cfg: cfg}, nil
}

func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Dial connects and logs in. The returned Conn is a *Session.
func (c *Client) Dial(ctx context.Context) (Conn, error) {
	s, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Login(ctx, c.endpoint.Username, c.endpoint.Password); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens the transport without authenticating.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	address := c.endpoint.Address()
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, connErr("dial "+address, err)
	}
	conn := rawConn
	if c.cfg.TLS.Enabled {
		tlsCfg, err := clientTLSConfig(c.cfg.TLS, address)
		if err != nil {
			_ = rawConn.Close()
			return nil, err
		}
		tlsConn := tls.Client(rawConn, tlsCfg)
		handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
		if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
			_ = rawConn.Close()
			return nil, connErr("tls handshake "+address, err)
		}
		conn = tlsConn
	}
	return &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    c.cfg,
		state:  StateConnected,
		logger: log.With().Str("component", "session").Str("router", c.endpoint.Label()).Logger(),
	}, nil
}

// Session is one RouterOS API connection.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    Config
	state  State
	logger zerolog.Logger
	mu     sync.Mutex
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.state == StateClosed || s.conn == nil {
		s.state = StateClosed
		return nil
	}
	s.state = StateClosed
	return s.conn.Close()
}

// Login performs the two-step handshake. The first bare /login reply is a
// legacy challenge and is discarded. Any failure closes the session.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return fmt.Errorf("%w: login in state %s", ErrNotReady, s.state)
	}

	if _, err := s.exchangeLocked(ctx, []string{"/login"}); err != nil && !errors.Is(err, ErrCommand) {
		_ = s.closeLocked()
		return err
	}

	words := []string{"/login", protocol.Attr("name", username), protocol.Attr("password", password)}
	if err := s.writeLocked(ctx, words); err != nil {
		_ = s.closeLocked()
		return err
	}
	reply, err := s.readReplyLocked(ctx)
	if err != nil {
		_ = s.closeLocked()
		return err
	}
	if reply.Type != protocol.ReplyDone {
		_ = s.closeLocked()
		return fmt.Errorf("%w: user=%q reply=%s message=%q", ErrAuthentication, username, reply.Type, reply.Message())
	}
	s.state = StateAuthenticated
	s.logger.Debug().Str("user", username).Msg("logged in")
	return nil
}

// Execute sends one command sentence and collects rows until !done. A !trap
// is drained to its trailing !done and returned as *TrapError.
func (s *Session) Execute(ctx context.Context, words ...string) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return Response{}, ErrSessionClosed
	}
	if s.state != StateAuthenticated {
		return Response{}, fmt.Errorf("%w: state %s", ErrNotReady, s.state)
	}
	if err := protocol.ValidateCommand(words); err != nil {
		return Response{}, err
	}
	return s.exchangeLocked(ctx, words)
}

func (s *Session) exchangeLocked(ctx context.Context, words []string) (Response, error) {
	if err := s.writeLocked(ctx, words); err != nil {
		return Response{}, err
	}
	var resp Response
	var trap *TrapError
	for {
		reply, err := s.readReplyLocked(ctx)
		if err != nil {
			return Response{}, err
		}
		switch reply.Type {
		case protocol.ReplyRow:
			if trap == nil {
				resp.Rows = append(resp.Rows, reply.Attrs)
			}
		case protocol.ReplyTrap:
			if trap == nil {
				trap = &TrapError{
					Command:  words[0],
					Message:  reply.Message(),
					Category: reply.Attrs["category"],
				}
			}
		case protocol.ReplyDone:
			if trap != nil {
				s.logger.Debug().Str("command", words[0]).Str("message", trap.Message).Msg("command trapped")
				return Response{}, trap
			}
			resp.Done = reply.Attrs
			return resp, nil
		case protocol.ReplyFatal:
			_ = s.closeLocked()
			return Response{}, fmt.Errorf("%w: fatal: %s", ErrConnection, reply.Message())
		}
	}
}

func (s *Session) writeLocked(ctx context.Context, words []string) error {
	payload, err := protocol.EncodeSentence(words)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(deadline(ctx, s.cfg.WriteTimeout)); err != nil {
		return connErr("set write deadline", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		_ = s.closeLocked()
		return connErr("write "+words[0], err)
	}
	return nil
}

func (s *Session) readReplyLocked(ctx context.Context) (protocol.Reply, error) {
	if err := s.conn.SetReadDeadline(deadline(ctx, s.cfg.ReadTimeout)); err != nil {
		return protocol.Reply{}, connErr("set read deadline", err)
	}
	reply, err := protocol.ReadReply(s.reader)
	if err != nil {
		// An unknown tag leaves the rest of the response unread, so the
		// stream is out of sync either way.
		_ = s.closeLocked()
		return protocol.Reply{}, connErr("read reply", err)
	}
	return reply, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	return d
}
