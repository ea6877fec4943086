package testclient

import (
	"context"
	"fmt"
	"time"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"

	"xdsprobe/internal/channelz"
)

// FindServerChannelWithState scans the channels to the server target in
// snapshot order and returns the first one in state. With checkSubchannel
// the channel must also have at least one subchannel in the same state.
// Channels that partially qualify are logged and skipped; the scan only
// fails, with *ChannelNotFoundError, once every candidate was rejected.
func (c *Client) FindServerChannelWithState(ctx context.Context, state channelzpb.ChannelConnectivityState_State, deadline time.Duration, checkSubchannel bool) (*channelzpb.Channel, error) {
	target := c.cfg.ServerTarget

	channels, err := c.channelz.ChannelsForTarget(ctx, target, deadline)
	if err != nil {
		return nil, err
	}

	for _, ch := range channels {
		c.log.Info("server channel", "channel", channelz.ChannelRepr(ch))
		if ch.GetData().GetState().GetState() != state {
			continue
		}
		if checkSubchannel {
			// A READY channel can still be draining its last subchannel;
			// require one subchannel that reached the state as well.
			sc, err := c.findSubchannelWithState(ctx, ch, state, deadline)
			if err != nil {
				if isNotFound(err) {
					c.log.Info("channel skipped, no qualifying subchannel",
						"channel_id", ch.GetRef().GetChannelId(),
						"state", state)
					continue
				}
				return nil, err
			}
			c.log.Info("found subchannel in state",
				"state", state,
				"subchannel", channelz.SubchannelRepr(sc))
		}
		return ch, nil
	}

	return nil, &ChannelNotFoundError{
		Src:           c.cfg.Hostname,
		Dst:           target,
		ExpectedState: state,
	}
}

// FindActiveControlPlaneChannel scans the channels to the control plane in
// snapshot order and returns the first with successful traffic: READY and
// strictly more calls started than failed. A READY channel that never
// completed a call does not qualify. Fails with *ChannelNotActiveError
// after a full scan.
func (c *Client) FindActiveControlPlaneChannel(ctx context.Context, target string, deadline time.Duration) (*channelzpb.Channel, error) {
	channels, err := c.channelz.ChannelsForTarget(ctx, target, deadline)
	if err != nil {
		return nil, err
	}

	for _, ch := range channels {
		c.log.Info("control plane channel", "channel", channelz.ChannelRepr(ch))
		if err := checkChannelSuccessfulCalls(ch); err != nil {
			c.log.Info("channel skipped",
				"channel_id", ch.GetRef().GetChannelId(),
				"reason", err)
			continue
		}
		return ch, nil
	}

	return nil, &ChannelNotActiveError{
		Src: c.cfg.Hostname,
		Dst: target,
	}
}

// findSubchannelWithState returns the first subchannel of ch in state, in
// listed order.
func (c *Client) findSubchannelWithState(ctx context.Context, ch *channelzpb.Channel, state channelzpb.ChannelConnectivityState_State, deadline time.Duration) (*channelzpb.Subchannel, error) {
	subchannels, err := c.channelz.ChannelSubchannels(ctx, ch, deadline)
	if err != nil {
		return nil, err
	}
	for _, sc := range subchannels {
		if sc.GetData().GetState().GetState() == state {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("no %s subchannel for channel %d: %w",
		state, ch.GetRef().GetChannelId(), ErrNotFound)
}

// checkChannelSuccessfulCalls is the traffic predicate: nil when the
// channel is READY and has completed net-positive calls.
func checkChannelSuccessfulCalls(ch *channelzpb.Channel) error {
	data := ch.GetData()
	if data.GetState().GetState() != channelzpb.ChannelConnectivityState_READY {
		return fmt.Errorf("channel state is %s, not READY: %w",
			data.GetState().GetState(), ErrNotFound)
	}
	if data.GetCallsStarted() <= data.GetCallsFailed() {
		return fmt.Errorf("no successful calls over the channel (started=%d failed=%d): %w",
			data.GetCallsStarted(), data.GetCallsFailed(), ErrNotFound)
	}
	return nil
}
