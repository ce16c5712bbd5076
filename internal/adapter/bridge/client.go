// Package bridge maintains the single connection to the onboard NMEA
// gateway device and turns its byte stream into framed messages.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/marine-gateway/internal/domain"
	"github.com/nexus-edge/marine-gateway/internal/metrics"
)

const (
	backoffBase = time.Second
	backoffMax  = 15 * time.Second

	readBufferSize = 4096
	maxScanBuffer  = 64 * 1024
)

// Config contains bridge client configuration
type Config struct {
	Connection domain.ConnectionConfig

	// FrameBuffer is the frame channel capacity. When it fills the reader
	// blocks, letting transport flow control push back on the bridge.
	FrameBuffer int

	// StatusBuffer is the status event channel capacity. Status events are
	// advisory; the newest always wins when consumers lag.
	StatusBuffer int
}

// Client owns the bridge connection. It dials, reads frames, reconnects
// with exponential backoff and never gives up while running. Received
// frames and status changes are exposed as channels, both closed by Stop.
type Client struct {
	config  Config
	logger  zerolog.Logger
	metrics *metrics.Registry

	frames   chan []byte
	statusCh chan domain.ConnectionStatus

	mu     sync.Mutex
	conn   net.Conn
	status domain.ConnectionStatus

	// Stats
	bytesReceived  atomic.Uint64
	framesReceived atomic.Uint64
	reconnects     atomic.Uint64

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewClient creates a new bridge client
func NewClient(config Config, logger zerolog.Logger, metricsReg *metrics.Registry) *Client {
	if config.Connection.ConnectTimeout <= 0 {
		config.Connection.ConnectTimeout = 10 * time.Second
	}
	if config.FrameBuffer <= 0 {
		config.FrameBuffer = 512
	}
	if config.StatusBuffer <= 0 {
		config.StatusBuffer = 16
	}

	return &Client{
		config:   config,
		logger:   logger.With().Str("component", "bridge").Logger(),
		metrics:  metricsReg,
		frames:   make(chan []byte, config.FrameBuffer),
		statusCh: make(chan domain.ConnectionStatus, config.StatusBuffer),
		status:   domain.ConnectionStatus{State: domain.ConnectionDisconnected},
	}
}

// Start validates the endpoint and begins the connect/read/reconnect loop
func (c *Client) Start(ctx context.Context) error {
	if err := c.config.Connection.Validate(); err != nil {
		return err
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.logger.Info().
		Str("endpoint", c.config.Connection.Endpoint()).
		Str("transport", string(c.config.Connection.Transport)).
		Msg("Bridge client started")

	return nil
}

// Stop terminates the connection and closes the frame and status channels
func (c *Client) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping bridge client...")

		c.cancel()

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn().Msg("Bridge client stop timeout")
			stopErr = ctx.Err()
			return
		}

		c.setState(domain.ConnectionDisconnected, nil)
		close(c.frames)
		close(c.statusCh)
		c.logger.Info().Msg("Bridge client stopped")
	})

	return stopErr
}

// Frames returns the received frame channel. Each element is one complete
// sentence or binary frame, checksum not yet verified.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// StatusEvents returns the connection status change channel.
func (c *Client) StatusEvents() <-chan domain.ConnectionStatus {
	return c.statusCh
}

// Status returns a snapshot of the current connection status.
func (c *Client) Status() domain.ConnectionStatus {
	c.mu.Lock()
	st := c.status
	c.mu.Unlock()

	st.BytesReceived = c.bytesReceived.Load()
	st.MessagesReceived = c.framesReceived.Load()
	return st
}

// Send writes one encoded command frame to the bridge.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: bridge not connected", domain.ErrConnectionClosed)
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	return nil
}

// run is the connect/read/reconnect loop. One successful read session
// resets the backoff schedule.
func (c *Client) run() {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.setState(domain.ConnectionConnecting, nil)

		conn, err := c.dial()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setState(domain.ConnectionError, err)
			c.reconnects.Add(1)
			c.metrics.IncReconnects()

			delay := backoffDelay(attempt)
			attempt++
			c.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("Bridge connection failed")
			if !c.sleep(delay) {
				return
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		c.setState(domain.ConnectionConnected, nil)
		c.logger.Info().
			Str("endpoint", c.config.Connection.Endpoint()).
			Msg("Bridge connected")

		err = c.readLoop(conn)
		c.setConn(nil)
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}

		c.setState(domain.ConnectionError, err)
		c.reconnects.Add(1)
		c.metrics.IncReconnects()

		delay := backoffDelay(attempt)
		attempt++
		c.logger.Warn().
			Err(err).
			Dur("retry_in", delay).
			Msg("Bridge connection lost")
		if !c.sleep(delay) {
			return
		}
	}
}

// dial establishes the transport connection. UDP uses a connected socket so
// reads are filtered to the bridge and writes need no address.
func (c *Client) dial() (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.config.Connection.ConnectTimeout}

	conn, err := dialer.DialContext(c.ctx, string(c.config.Connection.Transport), c.config.Connection.Endpoint())
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	return conn, nil
}

// readLoop scans the connection for complete frames until it breaks.
func (c *Client) readLoop(conn net.Conn) error {
	scanner := bufio.NewScanner(&countingReader{conn: conn, client: c})
	scanner.Buffer(make([]byte, readBufferSize), maxScanBuffer)
	scanner.Split(splitFrames)

	for scanner.Scan() {
		// The scanner reuses its buffer; downstream owns the frame.
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		c.framesReceived.Add(1)
		c.metrics.IncFramesReceived()

		select {
		case c.frames <- frame:
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: stream ended", domain.ErrConnectionClosed)
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// setState records the new state and pushes a status event, dropping the
// oldest queued event when consumers lag.
func (c *Client) setState(state domain.ConnectionState, err error) {
	c.mu.Lock()
	c.status.State = state
	switch {
	case state == domain.ConnectionConnected:
		c.status.EstablishedAt = time.Now()
		c.status.LastError = ""
	case err != nil:
		c.status.LastError = err.Error()
	}
	snapshot := c.status
	c.mu.Unlock()

	snapshot.BytesReceived = c.bytesReceived.Load()
	snapshot.MessagesReceived = c.framesReceived.Load()
	c.metrics.SetConnectionState(stateGauge(state))

	select {
	case c.statusCh <- snapshot:
		return
	default:
	}
	select {
	case <-c.statusCh:
	default:
	}
	select {
	case c.statusCh <- snapshot:
	default:
	}
}

// sleep waits out a backoff delay, returning false when interrupted.
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns bridge client statistics
func (c *Client) Stats() map[string]interface{} {
	c.mu.Lock()
	state := c.status.State
	c.mu.Unlock()

	return map[string]interface{}{
		"state":           string(state),
		"bytes_received":  c.bytesReceived.Load(),
		"frames_received": c.framesReceived.Load(),
		"reconnects":      c.reconnects.Load(),
	}
}

// backoffDelay returns the wait before reconnect attempt n: 1s, 2s, 4s, 8s,
// then 15s, plus up to 25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := backoffMax
	if attempt < 4 {
		delay = backoffBase << uint(attempt)
	}
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

func stateGauge(state domain.ConnectionState) float64 {
	switch state {
	case domain.ConnectionConnecting:
		return 1
	case domain.ConnectionConnected:
		return 2
	case domain.ConnectionError:
		return 3
	default:
		return 0
	}
}

// countingReader counts every byte off the wire, framed or not.
type countingReader struct {
	conn   net.Conn
	client *Client
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	if n > 0 {
		r.client.bytesReceived.Add(uint64(n))
		r.client.metrics.AddBytesReceived(int64(n))
	}
	return n, err
}
