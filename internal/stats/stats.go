// Package stats summarizes load-balancer stats responses for reporting.
package stats

import (
	"sort"

	testpb "google.golang.org/grpc/interop/grpc_testing"
)

// PeerCount is the number of RPCs one peer answered.
type PeerCount struct {
	Peer string
	RPCs int32
}

// Summary is a flattened view of one stats collection round.
type Summary struct {
	TotalRPCs int64
	Failures  int32
	Peers     []PeerCount
}

// FailureRatio is the share of requested RPCs that failed.
func (s Summary) FailureRatio() float64 {
	total := s.TotalRPCs + int64(s.Failures)
	if total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(total)
}

// Summarize flattens a stats response. Peers are sorted by name so output
// is deterministic regardless of map iteration order.
func Summarize(resp *testpb.LoadBalancerStatsResponse) Summary {
	s := Summary{Failures: resp.GetNumFailures()}

	byPeer := resp.GetRpcsByPeer()
	s.Peers = make([]PeerCount, 0, len(byPeer))
	for peer, count := range byPeer {
		s.Peers = append(s.Peers, PeerCount{Peer: peer, RPCs: count})
		s.TotalRPCs += int64(count)
	}
	sort.Slice(s.Peers, func(i, j int) bool { return s.Peers[i].Peer < s.Peers[j].Peer })

	return s
}
