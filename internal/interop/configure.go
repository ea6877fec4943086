package interop

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	testpb "google.golang.org/grpc/interop/grpc_testing"
)

// ConfigureClient drives the XdsUpdateClientConfigureService of a remote
// test client, switching which RPC types and metadata it sends.
type ConfigureClient struct {
	cfg testpb.XdsUpdateClientConfigureServiceClient
	log *slog.Logger
}

// NewConfigureClient wraps an established connection to the rpc port.
func NewConfigureClient(conn grpc.ClientConnInterface, log *slog.Logger) *ConfigureClient {
	if log == nil {
		log = slog.Default()
	}
	return &ConfigureClient{
		cfg: testpb.NewXdsUpdateClientConfigureServiceClient(conn),
		log: log,
	}
}

// Metadata attaches key=value to RPCs of the given type.
type Metadata struct {
	Type  testpb.ClientConfigureRequest_RpcType
	Key   string
	Value string
}

// Configure switches the client to send the given RPC types, optionally
// with metadata and a per-RPC timeout in seconds.
func (c *ConfigureClient) Configure(ctx context.Context, types []testpb.ClientConfigureRequest_RpcType, metadata []Metadata, timeoutSec int32) error {
	md := make([]*testpb.ClientConfigureRequest_Metadata, 0, len(metadata))
	for _, m := range metadata {
		md = append(md, &testpb.ClientConfigureRequest_Metadata{
			Type:  m.Type,
			Key:   m.Key,
			Value: m.Value,
		})
	}

	c.log.Debug("configuring client rpc behavior",
		"types", types,
		"timeout_sec", timeoutSec)
	_, err := c.cfg.Configure(ctx, &testpb.ClientConfigureRequest{
		Types:      types,
		Metadata:   md,
		TimeoutSec: timeoutSec,
	})
	return err
}
