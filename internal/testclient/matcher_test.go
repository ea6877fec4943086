package testclient

import (
	"context"
	"errors"
	"testing"
	"time"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"

	"xdsprobe/internal/channelztest"
)

const (
	testServerTarget = "xds:///server:8080"
	testXdsTarget    = "trafficdirector.example.com:443"
)

func newTestClient(t *testing.T) (*Client, *channelztest.Backend) {
	t.Helper()
	backend := channelztest.New()
	conn := channelztest.Serve(t, backend)
	c := NewFromConns(Config{
		Addr:            "10.0.0.5",
		RPCPort:         50052,
		ServerTarget:    testServerTarget,
		Hostname:        "client-0",
		ControlPlaneURI: testXdsTarget,
	}, conn, conn)
	c.waitMin = 10 * time.Millisecond
	c.waitMax = 40 * time.Millisecond
	return c, backend
}

func ready(id int64, subIDs ...int64) *channelzpb.Channel {
	return channelztest.Channel(channelztest.ChannelSpec{
		ID:            id,
		Target:        testServerTarget,
		State:         channelzpb.ChannelConnectivityState_READY,
		SubchannelIDs: subIDs,
	})
}

func TestFindServerChannelWithState_SkipsNonMatchingStates(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(
		channelztest.Channel(channelztest.ChannelSpec{
			ID:     1,
			Target: testServerTarget,
			State:  channelzpb.ChannelConnectivityState_TRANSIENT_FAILURE,
		}),
		ready(2, 20),
	)
	backend.SetSubchannels(
		channelztest.Subchannel(20, channelzpb.ChannelConnectivityState_READY),
	)

	ch, err := c.FindServerChannelWithState(context.Background(), channelzpb.ChannelConnectivityState_READY, time.Second, true)
	if err != nil {
		t.Fatalf("FindServerChannelWithState: %v", err)
	}
	if ch.GetRef().GetChannelId() != 2 {
		t.Fatalf("channel_id=%d, want 2", ch.GetRef().GetChannelId())
	}
}

func TestFindServerChannelWithState_FirstMatchWins(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(ready(1, 10), ready(2, 20))
	backend.SetSubchannels(
		channelztest.Subchannel(10, channelzpb.ChannelConnectivityState_READY),
		channelztest.Subchannel(20, channelzpb.ChannelConnectivityState_READY),
	)

	ch, err := c.FindServerChannelWithState(context.Background(), channelzpb.ChannelConnectivityState_READY, time.Second, true)
	if err != nil {
		t.Fatalf("FindServerChannelWithState: %v", err)
	}
	if ch.GetRef().GetChannelId() != 1 {
		t.Fatalf("channel_id=%d, want first match", ch.GetRef().GetChannelId())
	}
}

func TestFindServerChannelWithState_RequiresQualifyingSubchannel(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	// READY channel whose only subchannel is still CONNECTING.
	backend.SetChannels(ready(1, 10))
	backend.SetSubchannels(
		channelztest.Subchannel(10, channelzpb.ChannelConnectivityState_CONNECTING),
	)

	_, err := c.FindServerChannelWithState(context.Background(), channelzpb.ChannelConnectivityState_READY, time.Second, true)
	var notFound *ChannelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err=%v, want ChannelNotFoundError", err)
	}
	if notFound.Dst != testServerTarget {
		t.Fatalf("Dst=%q", notFound.Dst)
	}
	if notFound.ExpectedState != channelzpb.ChannelConnectivityState_READY {
		t.Fatalf("ExpectedState=%v", notFound.ExpectedState)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("ChannelNotFoundError must match ErrNotFound")
	}

	// Without the subchannel requirement the same channel qualifies.
	ch, err := c.FindServerChannelWithState(context.Background(), channelzpb.ChannelConnectivityState_READY, time.Second, false)
	if err != nil {
		t.Fatalf("without subchannel check: %v", err)
	}
	if ch.GetRef().GetChannelId() != 1 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
}

func TestFindServerChannelWithState_EmptySnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	_, err := c.FindServerChannelWithState(context.Background(), channelzpb.ChannelConnectivityState_READY, time.Second, true)
	var notFound *ChannelNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err=%v", err)
	}
	if notFound.Src != "client-0" {
		t.Fatalf("Src=%q", notFound.Src)
	}
}

func TestFindActiveControlPlaneChannel_SuccessfulTraffic(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(channelztest.Channel(channelztest.ChannelSpec{
		ID:           1,
		Target:       testXdsTarget,
		State:        channelzpb.ChannelConnectivityState_READY,
		CallsStarted: 5,
		CallsFailed:  2,
	}))

	ch, err := c.FindActiveControlPlaneChannel(context.Background(), testXdsTarget, time.Second)
	if err != nil {
		t.Fatalf("FindActiveControlPlaneChannel: %v", err)
	}
	if ch.GetRef().GetChannelId() != 1 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
}

func TestFindActiveControlPlaneChannel_ReadyWithoutCallsDoesNotQualify(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(channelztest.Channel(channelztest.ChannelSpec{
		ID:     2,
		Target: testXdsTarget,
		State:  channelzpb.ChannelConnectivityState_READY,
		// Zero calls either way: READY alone is not "active".
	}))

	_, err := c.FindActiveControlPlaneChannel(context.Background(), testXdsTarget, time.Second)
	var notActive *ChannelNotActiveError
	if !errors.As(err, &notActive) {
		t.Fatalf("err=%v, want ChannelNotActiveError", err)
	}
	if notActive.Dst != testXdsTarget {
		t.Fatalf("Dst=%q", notActive.Dst)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("ChannelNotActiveError must match ErrNotFound")
	}
}

func TestFindActiveControlPlaneChannel_EqualStartedAndFailedDoesNotQualify(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(channelztest.Channel(channelztest.ChannelSpec{
		ID:           3,
		Target:       testXdsTarget,
		State:        channelzpb.ChannelConnectivityState_READY,
		CallsStarted: 4,
		CallsFailed:  4,
	}))

	_, err := c.FindActiveControlPlaneChannel(context.Background(), testXdsTarget, time.Second)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestFindActiveControlPlaneChannel_SkipsInactiveReturnsFirstActive(t *testing.T) {
	t.Parallel()

	c, backend := newTestClient(t)
	backend.SetChannels(
		channelztest.Channel(channelztest.ChannelSpec{
			ID:           1,
			Target:       testXdsTarget,
			State:        channelzpb.ChannelConnectivityState_TRANSIENT_FAILURE,
			CallsStarted: 9,
			CallsFailed:  9,
		}),
		channelztest.Channel(channelztest.ChannelSpec{
			ID:           2,
			Target:       testXdsTarget,
			State:        channelzpb.ChannelConnectivityState_READY,
			CallsStarted: 3,
			CallsFailed:  1,
		}),
	)

	ch, err := c.FindActiveControlPlaneChannel(context.Background(), testXdsTarget, time.Second)
	if err != nil {
		t.Fatalf("FindActiveControlPlaneChannel: %v", err)
	}
	if ch.GetRef().GetChannelId() != 2 {
		t.Fatalf("channel_id=%d", ch.GetRef().GetChannelId())
	}
}
