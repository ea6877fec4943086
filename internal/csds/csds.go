// Package csds fetches the client config dump a test client exposes via
// the Client Status Discovery Service on its maintenance port.
package csds

import (
	"context"
	"fmt"
	"log/slog"

	statuspb "github.com/envoyproxy/go-control-plane/envoy/service/status/v3"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/prototext"
)

// Client wraps the CSDS service of a remote test client.
type Client struct {
	csds statuspb.ClientStatusDiscoveryServiceClient
	log  *slog.Logger
}

// NewClient wraps an established connection to the maintenance port.
func NewClient(conn grpc.ClientConnInterface, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		csds: statuspb.NewClientStatusDiscoveryServiceClient(conn),
		log:  log,
	}
}

// FetchClientStatus returns the xDS config state of the client node.
func (c *Client) FetchClientStatus(ctx context.Context) (*statuspb.ClientConfig, error) {
	resp, err := c.csds.FetchClientStatus(ctx, &statuspb.ClientStatusRequest{})
	if err != nil {
		return nil, err
	}
	configs := resp.GetConfig()
	if len(configs) == 0 {
		return nil, fmt.Errorf("csds response carries no client config")
	}
	if len(configs) > 1 {
		c.log.Warn("csds response carries multiple client configs, using the first",
			"count", len(configs))
	}
	return configs[0], nil
}

// Dump renders the client config as proto text for inspection.
func (c *Client) Dump(ctx context.Context) (string, error) {
	config, err := c.FetchClientStatus(ctx)
	if err != nil {
		return "", err
	}
	return prototext.MarshalOptions{Multiline: true, Indent: "  "}.Format(config), nil
}
