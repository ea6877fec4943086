package testclient

import (
	"context"
	"fmt"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"

	"xdsprobe/internal/channelz"
)

// ActiveServerSocket locates the READY channel to the server and returns
// the socket backing it: first subchannel, first socket. Exactly one of
// each is expected in the common case; extras are logged, not fatal.
func (c *Client) ActiveServerSocket(ctx context.Context) (*channelzpb.Socket, error) {
	ch, err := c.FindServerChannelWithState(ctx, channelzpb.ChannelConnectivityState_READY, 0, true)
	if err != nil {
		return nil, err
	}
	c.log.Debug("retrieving client to server socket",
		"channel_id", ch.GetRef().GetChannelId())

	subchannels, err := c.channelz.ChannelSubchannels(ctx, ch, 0)
	if err != nil {
		return nil, err
	}
	if len(subchannels) == 0 {
		return nil, fmt.Errorf("channel %d has no subchannels: %w",
			ch.GetRef().GetChannelId(), ErrNotFound)
	}
	if len(subchannels) > 1 {
		c.log.Warn("unexpected extra subchannels",
			"channel_id", ch.GetRef().GetChannelId(),
			"count", len(subchannels))
	}

	sockets, err := c.channelz.SubchannelSockets(ctx, subchannels[0], 0)
	if err != nil {
		return nil, err
	}
	if len(sockets) == 0 {
		return nil, fmt.Errorf("subchannel %d has no sockets: %w",
			subchannels[0].GetRef().GetSubchannelId(), ErrNotFound)
	}
	if len(sockets) > 1 {
		c.log.Warn("unexpected extra sockets",
			"subchannel_id", subchannels[0].GetRef().GetSubchannelId(),
			"count", len(sockets))
	}

	c.log.Debug("found client to server socket",
		"socket", channelz.SocketRepr(sockets[0]))
	return sockets[0], nil
}

// FindServerSubchannelsWithState returns every subchannel in state across
// all channels to the server target, in snapshot order.
func (c *Client) FindServerSubchannelsWithState(ctx context.Context, state channelzpb.ChannelConnectivityState_State) ([]*channelzpb.Subchannel, error) {
	channels, err := c.channelz.ChannelsForTarget(ctx, c.cfg.ServerTarget, 0)
	if err != nil {
		return nil, err
	}

	var matched []*channelzpb.Subchannel
	for _, ch := range channels {
		subchannels, err := c.channelz.ChannelSubchannels(ctx, ch, 0)
		if err != nil {
			return nil, err
		}
		for _, sc := range subchannels {
			if sc.GetData().GetState().GetState() == state {
				matched = append(matched, sc)
			}
		}
	}
	return matched, nil
}
