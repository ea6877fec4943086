package testclient

import (
	"context"
	"errors"
	"testing"
	"time"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdsprobe/internal/channelztest"
	"xdsprobe/internal/retry"
)

func TestWaitForServerChannelReady_ImmediateSuccess(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(ready(1, 10))
	backend.SetSubchannels(
		channelztest.Subchannel(10, channelzpb.ChannelConnectivityState_READY),
	)

	start := time.Now()
	ch, err := c.WaitForServerChannelReady(context.Background(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForServerChannelReady: %v", err)
	}
	if ch.GetRef().GetChannelId() != 1 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
	// First snapshot qualified: no backoff sleep should have happened.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("took %v despite qualifying first snapshot", elapsed)
	}
	if calls := backend.TopChannelCalls(); calls != 1 {
		t.Fatalf("top channel calls=%d, want 1", calls)
	}
}

func TestWaitForServerChannelReady_ConvergesAfterRetries(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	// Empty snapshot first; the channel appears while the waiter polls.
	go func() {
		time.Sleep(35 * time.Millisecond)
		backend.SetSubchannels(
			channelztest.Subchannel(10, channelzpb.ChannelConnectivityState_READY),
		)
		backend.SetChannels(ready(1, 10))
	}()

	ch, err := c.WaitForServerChannelReady(context.Background(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForServerChannelReady: %v", err)
	}
	if ch.GetRef().GetChannelId() != 1 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
	if calls := backend.TopChannelCalls(); calls < 2 {
		t.Fatalf("top channel calls=%d, want at least 2", calls)
	}
}

func TestWaitForServerChannelReady_ExhaustionAttachesHint(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	_, err := c.WaitForServerChannelReady(context.Background(), WithTimeout(100*time.Millisecond))
	if err == nil {
		t.Fatal("expected exhaustion")
	}

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err type %T: %v", err, err)
	}
	var notFound *ChannelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("exhaustion does not wrap ChannelNotFoundError: %v", err)
	}
	if notFound.Hint == "" {
		t.Fatalf("no reachability hint on %v", err)
	}
}

func TestWaitForServerChannelState_TransportFailureSurfacesAsIs(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.FailWith(status.Error(codes.Unavailable, "introspection down"))

	_, err := c.WaitForServerChannelState(context.Background(),
		channelzpb.ChannelConnectivityState_READY, WithTimeout(60*time.Millisecond))
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err type %T: %v", err, err)
	}
	// The final error reflects the transport failure, not a synthesized miss.
	if status.Code(exhausted.LastErr) != codes.Unavailable {
		t.Fatalf("last error=%v, want Unavailable", exhausted.LastErr)
	}
	if errors.Is(exhausted.LastErr, ErrNotFound) {
		t.Fatalf("transport failure reported as not-found: %v", exhausted.LastErr)
	}
}

func TestWaitForControlPlaneChannelActive_DefaultsTargetAndAttachesHint(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	_, err := c.WaitForControlPlaneChannelActive(context.Background(), WithTimeout(100*time.Millisecond))
	if err == nil {
		t.Fatal("expected exhaustion")
	}
	var notActive *ChannelNotActiveError
	if !errors.As(err, &notActive) {
		t.Fatalf("err=%v", err)
	}
	if notActive.Dst != testXdsTarget {
		t.Fatalf("Dst=%q, want configured control plane target", notActive.Dst)
	}
	if notActive.Hint == "" {
		t.Fatalf("no reachability hint on %v", err)
	}
}

func TestWaitForControlPlaneChannelActive_Succeeds(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(channelztest.Channel(channelztest.ChannelSpec{
		ID:           7,
		Target:       testXdsTarget,
		State:        channelzpb.ChannelConnectivityState_READY,
		CallsStarted: 2,
		CallsFailed:  0,
	}))

	ch, err := c.WaitForControlPlaneChannelActive(context.Background(), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForControlPlaneChannelActive: %v", err)
	}
	if ch.GetRef().GetChannelId() != 7 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
}

func TestWaitForControlPlaneChannelActive_URIOverride(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(channelztest.Channel(channelztest.ChannelSpec{
		ID:           8,
		Target:       "custom-cp:443",
		State:        channelzpb.ChannelConnectivityState_READY,
		CallsStarted: 1,
	}))

	ch, err := c.WaitForControlPlaneChannelActive(context.Background(),
		WithTimeout(5*time.Second), WithControlPlaneURI("custom-cp:443"))
	if err != nil {
		t.Fatalf("WaitForControlPlaneChannelActive: %v", err)
	}
	if ch.GetRef().GetChannelId() != 8 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
}
