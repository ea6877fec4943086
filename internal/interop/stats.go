// Package interop wraps the test RPC services a remote test client exposes
// on its rpc port. These are plain request/response calls; no retrying or
// topology logic lives here.
package interop

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	testpb "google.golang.org/grpc/interop/grpc_testing"
)

// MetadataKeysAll requests all metadata in a load-balancer stats call.
const MetadataKeysAll = "*"

// StatsClient queries the LoadBalancerStatsService of a remote test client.
type StatsClient struct {
	lb  testpb.LoadBalancerStatsServiceClient
	log *slog.Logger
}

// NewStatsClient wraps an established connection to the rpc port.
func NewStatsClient(conn grpc.ClientConnInterface, log *slog.Logger) *StatsClient {
	if log == nil {
		log = slog.Default()
	}
	return &StatsClient{
		lb:  testpb.NewLoadBalancerStatsServiceClient(conn),
		log: log,
	}
}

// GetClientStats asks the client to send numRPCs RPCs and report the
// per-peer distribution, waiting at most timeoutSec for them to finish.
func (s *StatsClient) GetClientStats(ctx context.Context, numRPCs, timeoutSec int32, metadataKeys ...string) (*testpb.LoadBalancerStatsResponse, error) {
	s.log.Debug("requesting load balancer stats",
		"num_rpcs", numRPCs,
		"timeout_sec", timeoutSec)
	return s.lb.GetClientStats(ctx, &testpb.LoadBalancerStatsRequest{
		NumRpcs:      numRPCs,
		TimeoutSec:   timeoutSec,
		MetadataKeys: metadataKeys,
	})
}

// GetClientAccumulatedStats reports the client's RPC counters since start.
func (s *StatsClient) GetClientAccumulatedStats(ctx context.Context) (*testpb.LoadBalancerAccumulatedStatsResponse, error) {
	s.log.Debug("requesting accumulated stats")
	return s.lb.GetClientAccumulatedStats(ctx, &testpb.LoadBalancerAccumulatedStatsRequest{})
}
