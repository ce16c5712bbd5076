package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TransportKind selects the socket flavor used to reach the bridge.
type TransportKind string

const (
	TransportTCP TransportKind = "tcp"
	TransportUDP TransportKind = "udp"
)

// ConnectionState is the bridge connection's lifecycle state.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

// ConnectionConfig describes the single bridge endpoint. It is copied by
// value when a connection attempt starts and never mutated afterwards.
type ConnectionConfig struct {
	Address   string        `json:"address" yaml:"address"`
	Port      int           `json:"port" yaml:"port"`
	Transport TransportKind `json:"transport" yaml:"transport"`

	// ConnectTimeout bounds a single establishment attempt. An attempt that
	// does not establish within it counts as a failure and triggers backoff.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// Validate checks the endpoint configuration.
func (c ConnectionConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrConnectionFailed)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrConnectionFailed, c.Port)
	}
	if c.Transport != TransportTCP && c.Transport != TransportUDP {
		return fmt.Errorf("%w: %q", ErrTransportUnsupported, c.Transport)
	}
	return nil
}

// Endpoint returns the host:port dial string.
func (c ConnectionConfig) Endpoint() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// ConnectionStatus is the bridge client's externally visible state. Owned
// exclusively by the client; everyone else reads snapshots.
type ConnectionStatus struct {
	State            ConnectionState `json:"state"`
	EstablishedAt    time.Time       `json:"established_at,omitempty"`
	BytesReceived    uint64          `json:"bytes_received"`
	MessagesReceived uint64          `json:"messages_received"`
	LastError        string          `json:"last_error,omitempty"`
}
