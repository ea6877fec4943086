// Package testclient wraps the RPC services of a remote test client process
// and decides, by polling its channelz snapshots, whether its connection
// topology has converged to an expected state.
package testclient

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"xdsprobe/internal/channelz"
	"xdsprobe/internal/csds"
	"xdsprobe/internal/interop"
)

// DefaultControlPlaneURI is the control-plane target assumed when the
// caller does not name one.
const DefaultControlPlaneURI = "trafficdirector.googleapis.com:443"

// Config identifies one remote test client process.
type Config struct {
	// Addr is the host the client's RPC services listen on.
	Addr string
	// RPCPort serves the test services (LB stats, client configure).
	RPCPort int
	// MaintenancePort serves channelz and CSDS. Zero means RPCPort.
	MaintenancePort int
	// ServerTarget is the peer address the client under observation should
	// be connecting to.
	ServerTarget string
	// Hostname uniquely identifies the client replica in logs and errors.
	Hostname string
	// ControlPlaneURI overrides DefaultControlPlaneURI when set.
	ControlPlaneURI string

	// Log is the handle all sub-components log through. Nil falls back to
	// slog.Default().
	Log *slog.Logger
}

// Client is a handle to one remote test client. Sub-clients are constructed
// once, up front, over at most two shared connections. A Client is safe for
// use from a single waiter invocation at a time; independent invocations
// should own independent Clients.
type Client struct {
	cfg Config
	log *slog.Logger

	rpcConn   *grpc.ClientConn
	maintConn *grpc.ClientConn

	channelz  *channelz.Client
	stats     *interop.StatsClient
	configure *interop.ConfigureClient
	csds      *csds.Client

	// Backoff window between polls. Zero values mean the package defaults;
	// tests shrink these to keep polling fast.
	waitMin time.Duration
	waitMax time.Duration
}

// New dials the client's RPC and maintenance ports and wires up the
// sub-clients. Dialing is lazy; the first RPC establishes the transport.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("client addr is required")
	}
	if cfg.RPCPort == 0 {
		return nil, fmt.Errorf("client rpc port is required")
	}

	rpcConn, err := dial(cfg.Addr, cfg.RPCPort)
	if err != nil {
		return nil, fmt.Errorf("dial rpc port: %w", err)
	}

	maintConn := rpcConn
	if cfg.MaintenancePort != 0 && cfg.MaintenancePort != cfg.RPCPort {
		maintConn, err = dial(cfg.Addr, cfg.MaintenancePort)
		if err != nil {
			rpcConn.Close()
			return nil, fmt.Errorf("dial maintenance port: %w", err)
		}
	}

	c := newFromConns(cfg, rpcConn, maintConn)
	c.rpcConn = rpcConn
	if maintConn != rpcConn {
		c.maintConn = maintConn
	}
	return c, nil
}

// NewFromConns builds a Client over caller-owned connections. The caller
// keeps responsibility for closing them.
func NewFromConns(cfg Config, rpcConn, maintConn grpc.ClientConnInterface) *Client {
	return newFromConns(cfg, rpcConn, maintConn)
}

func newFromConns(cfg Config, rpcConn, maintConn grpc.ClientConnInterface) *Client {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("client", cfg.Hostname)

	return &Client{
		cfg:       cfg,
		log:       log,
		channelz:  channelz.NewClient(maintConn, log),
		stats:     interop.NewStatsClient(rpcConn, log),
		configure: interop.NewConfigureClient(rpcConn, log),
		csds:      csds.NewClient(maintConn, log),
	}
}

// Close tears down the connections owned by this handle.
func (c *Client) Close() error {
	var firstErr error
	if c.rpcConn != nil {
		firstErr = c.rpcConn.Close()
	}
	if c.maintConn != nil {
		if err := c.maintConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Channelz exposes the introspection accessor.
func (c *Client) Channelz() *channelz.Client { return c.channelz }

// Stats exposes the load-balancer statistics sub-client.
func (c *Client) Stats() *interop.StatsClient { return c.stats }

// Configure exposes the client-configure sub-client.
func (c *Client) Configure() *interop.ConfigureClient { return c.configure }

// CSDS exposes the client config dump sub-client.
func (c *Client) CSDS() *csds.Client { return c.csds }

// Hostname returns the replica identity used in logs and errors.
func (c *Client) Hostname() string { return c.cfg.Hostname }

// ServerTarget returns the peer address the client should be connecting to.
func (c *Client) ServerTarget() string { return c.cfg.ServerTarget }

func (c *Client) controlPlaneURI() string {
	if c.cfg.ControlPlaneURI != "" {
		return c.cfg.ControlPlaneURI
	}
	return DefaultControlPlaneURI
}

func dial(host string, port int) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		net.JoinHostPort(host, strconv.Itoa(port)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}
