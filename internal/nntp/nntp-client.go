// Package nntp provides the NNTP client used by the indexer workers.
// Connections are worker-owned and never shared across goroutines.
package nntp

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"time"

	"github.com/go-while/go-nzbidx/internal/config"
)

const (
	// NNTPWelcomeCodeMin is the minimum welcome code for NNTP servers.
	NNTPWelcomeCodeMin int = 200
	// NNTPWelcomeCodeMax is the maximum welcome code for NNTP servers.
	NNTPWelcomeCodeMax int = 201
	// NNTPMoreInfoCode indicates more information is required (e.g., password).
	NNTPMoreInfoCode int = 381
	// NNTPAuthSuccess indicates successful authentication.
	NNTPAuthSuccess int = 281
	// NNTPAuthRejected indicates the server rejected the credentials.
	NNTPAuthRejected int = 481

	// GroupSelected indicates a successful GROUP command.
	GroupSelected int = 211
	// NoSuchGroup indicates the group does not exist on the server.
	NoSuchGroup int = 411

	// OverviewFollows indicates that overview data follows (multi-line).
	OverviewFollows int = 224
	// HeadFollows indicates that the head of an article follows (multi-line).
	HeadFollows int = 221
	// BodyFollows indicates that the body of an article follows (multi-line).
	BodyFollows int = 222

	// NoSuchArticleNum indicates no article with that number.
	NoSuchArticleNum int = 423
	// NoSuchArticle indicates that no such article exists.
	NoSuchArticle int = 430
	// DMCA indicates a DMCA takedown.
	DMCA int = 451

	// MaxReadLinesHeaders limits HEAD responses.
	MaxReadLinesHeaders = 1024
	// MaxReadLinesOverview limits OVER responses.
	MaxReadLinesOverview = 100000
	// MaxReadLinesBody limits BODY responses while fetching prefixes.
	MaxReadLinesBody = 256 * 1024
)

var (
	// ErrNotConnected is returned when a command is issued before Connect.
	ErrNotConnected = errors.New("not connected")
	// ErrAuthFailed is returned when AUTHINFO is rejected. Fatal for the
	// worker; the scheduler backs the group off until settings change.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrGroupNotFound is returned when GROUP yields 411.
	ErrGroupNotFound = errors.New("no such newsgroup")
	// ErrArticleNotFound is returned when an article is gone (423/430).
	ErrArticleNotFound = errors.New("no such article")
	// ErrArticleRemoved is returned for DMCA takedowns.
	ErrArticleRemoved = errors.New("article removed")
)

// BackendConfig holds configuration for an NNTP connection.
type BackendConfig struct {
	Host           string
	Port           int
	SSL            bool
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// BackendConn represents a single NNTP connection to a server. It is not
// safe for concurrent use; every worker owns its own.
type BackendConn struct {
	conn     net.Conn
	textConn *textproto.Conn
	writer   *bufio.Writer
	Backend  *BackendConfig

	connected     bool
	authenticated bool
	created       time.Time
	lastUsed      time.Time
}

// GroupInfo represents newsgroup information from a GROUP response.
type GroupInfo struct {
	Name  string
	Count int64
	First int64
	Last  int64
}

// NewConn creates a new empty NNTP connection with the provided backend
// configuration.
func NewConn(backend *BackendConfig) *BackendConn {
	return &BackendConn{
		Backend: backend,
		created: time.Now(),
	}
}

// Connect establishes the connection, validates the welcome code and
// authenticates when credentials are configured.
func (c *BackendConn) Connect() error {
	if c.connected {
		return nil
	}
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = config.DefaultConnectTimeout
	}

	serverAddr := net.JoinHostPort(c.Backend.Host, fmt.Sprintf("%d", c.Backend.Port))

	var conn net.Conn
	var err error
	if c.Backend.SSL {
		tlsConfig := &tls.Config{
			ServerName: c.Backend.Host,
			MinVersion: tls.VersionTLS12,
		}
		conn, err = tls.DialWithDialer(&net.Dialer{
			Timeout: c.Backend.ConnectTimeout,
		}, "tcp", serverAddr, tlsConfig)
	} else {
		conn, err = net.DialTimeout("tcp", serverAddr, c.Backend.ConnectTimeout)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.conn = conn
	c.textConn = textproto.NewConn(conn)
	c.writer = bufio.NewWriter(conn)

	code, message, err := c.textConn.ReadCodeLine(NNTPWelcomeCodeMin)
	if err != nil && code == 0 {
		c.closeRaw()
		return fmt.Errorf("failed to read welcome: %w", err)
	}
	if code < NNTPWelcomeCodeMin || code > NNTPWelcomeCodeMax {
		log.Printf("[NNTP-CONN] Invalid welcome code %d from %s:%d: %s", code, c.Backend.Host, c.Backend.Port, message)
		c.closeRaw()
		return fmt.Errorf("unexpected welcome code %d: %s", code, message)
	}

	c.connected = true
	c.lastUsed = time.Now()

	if c.Backend.Username != "" {
		if err := c.authenticate(); err != nil {
			log.Printf("[NNTP-AUTH] Authentication FAILED for user '%s' on %s:%d: %v",
				c.Backend.Username, c.Backend.Host, c.Backend.Port, err)
			c.closeRaw()
			return err
		}
	}
	return nil
}

// authenticate performs AUTHINFO USER/PASS.
func (c *BackendConn) authenticate() error {
	id, err := c.textConn.Cmd("AUTHINFO USER %s", c.Backend.Username)
	if err != nil {
		return fmt.Errorf("failed to send AUTHINFO USER: %w", err)
	}
	c.textConn.StartResponse(id)
	code, message, err := c.textConn.ReadCodeLine(NNTPMoreInfoCode)
	c.textConn.EndResponse(id)
	if err != nil && code == 0 {
		return fmt.Errorf("failed to read AUTHINFO USER response: %w", err)
	}
	// Some servers accept the user alone.
	if code == NNTPAuthSuccess {
		c.authenticated = true
		return nil
	}
	if code != NNTPMoreInfoCode {
		return fmt.Errorf("%w: unexpected response to AUTHINFO USER: %d %s", ErrAuthFailed, code, message)
	}

	id, err = c.textConn.Cmd("AUTHINFO PASS %s", c.Backend.Password)
	if err != nil {
		return fmt.Errorf("failed to send AUTHINFO PASS: %w", err)
	}
	c.textConn.StartResponse(id)
	code, message, err = c.textConn.ReadCodeLine(NNTPAuthSuccess)
	c.textConn.EndResponse(id)
	if err != nil && code == 0 {
		return fmt.Errorf("failed to read AUTHINFO PASS response: %w", err)
	}
	if code != NNTPAuthSuccess {
		return fmt.Errorf("%w: %d %s", ErrAuthFailed, code, message)
	}
	c.authenticated = true
	return nil
}

// Quit sends QUIT and closes the connection. Best effort; safe to call on
// a dead connection.
func (c *BackendConn) Quit() {
	if c.connected && c.textConn != nil {
		if id, err := c.textConn.Cmd("QUIT"); err == nil {
			c.textConn.StartResponse(id)
			c.textConn.ReadCodeLine(205)
			c.textConn.EndResponse(id)
		}
	}
	c.closeRaw()
}

// closeRaw tears down the sockets without protocol goodbye.
func (c *BackendConn) closeRaw() {
	if c.textConn != nil {
		c.textConn.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.authenticated = false
	c.textConn = nil
	c.conn = nil
	c.writer = nil
}

// Connected reports whether the connection is established.
func (c *BackendConn) Connected() bool {
	return c.connected
}
