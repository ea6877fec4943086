package channelz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc"
	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
)

// DefaultCallDeadline bounds a single introspection RPC. It is deliberately
// much smaller than the convergence timeouts layered above, so one slow RPC
// cannot eat the whole polling budget.
const DefaultCallDeadline = 30 * time.Second

// Client is a thin query surface over the channelz service of a remote
// process. Calls are single bounded RPCs; transport errors propagate
// unchanged. Retrying is the caller's concern.
type Client struct {
	cz  channelzpb.ChannelzClient
	log *slog.Logger
}

// NewClient wraps an established connection to the remote maintenance port.
func NewClient(conn grpc.ClientConnInterface, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cz:  channelzpb.NewChannelzClient(conn),
		log: log,
	}
}

// ChannelsForTarget returns every top-level channel whose target exactly
// equals target, in channelz listing order. Pages through GetTopChannels
// until the service reports the end of the list.
func (c *Client) ChannelsForTarget(ctx context.Context, target string, deadline time.Duration) ([]*channelzpb.Channel, error) {
	var channels []*channelzpb.Channel

	start := int64(0)
	for {
		callCtx, cancel := c.callContext(ctx, deadline)
		resp, err := c.cz.GetTopChannels(callCtx, &channelzpb.GetTopChannelsRequest{
			StartChannelId: start,
		})
		cancel()
		if err != nil {
			return nil, err
		}

		for _, ch := range resp.GetChannel() {
			if ch.GetData().GetTarget() == target {
				channels = append(channels, ch)
			}
			if id := ch.GetRef().GetChannelId(); id >= start {
				start = id + 1
			}
		}
		if resp.GetEnd() || len(resp.GetChannel()) == 0 {
			break
		}
	}

	c.log.Debug("listed channels for target",
		"target", target,
		"count", len(channels))
	return channels, nil
}

// ChannelSubchannels resolves the subchannels referenced by ch, preserving
// the reference order of the snapshot.
func (c *Client) ChannelSubchannels(ctx context.Context, ch *channelzpb.Channel, deadline time.Duration) ([]*channelzpb.Subchannel, error) {
	refs := ch.GetSubchannelRef()
	subchannels := make([]*channelzpb.Subchannel, 0, len(refs))
	for _, ref := range refs {
		callCtx, cancel := c.callContext(ctx, deadline)
		resp, err := c.cz.GetSubchannel(callCtx, &channelzpb.GetSubchannelRequest{
			SubchannelId: ref.GetSubchannelId(),
		})
		cancel()
		if err != nil {
			return nil, err
		}
		subchannels = append(subchannels, resp.GetSubchannel())
	}
	return subchannels, nil
}

// SubchannelSockets resolves the sockets referenced by sc, preserving the
// reference order of the snapshot.
func (c *Client) SubchannelSockets(ctx context.Context, sc *channelzpb.Subchannel, deadline time.Duration) ([]*channelzpb.Socket, error) {
	refs := sc.GetSocketRef()
	sockets := make([]*channelzpb.Socket, 0, len(refs))
	for _, ref := range refs {
		callCtx, cancel := c.callContext(ctx, deadline)
		resp, err := c.cz.GetSocket(callCtx, &channelzpb.GetSocketRequest{
			SocketId: ref.GetSocketId(),
		})
		cancel()
		if err != nil {
			return nil, err
		}
		sockets = append(sockets, resp.GetSocket())
	}
	return sockets, nil
}

func (c *Client) callContext(ctx context.Context, deadline time.Duration) (context.Context, context.CancelFunc) {
	if deadline <= 0 {
		deadline = DefaultCallDeadline
	}
	return context.WithTimeout(ctx, deadline)
}

// StateName returns the channelz name for a connectivity state.
func StateName(s channelzpb.ChannelConnectivityState_State) string {
	return s.String()
}

// ParseState maps a state name (case-insensitive) back to the channelz enum.
func ParseState(name string) (channelzpb.ChannelConnectivityState_State, error) {
	v, ok := channelzpb.ChannelConnectivityState_State_value[strings.ToUpper(name)]
	if !ok {
		return channelzpb.ChannelConnectivityState_UNKNOWN, fmt.Errorf("unknown channel state %q (known: %s)", name, strings.Join(stateNames(), ", "))
	}
	return channelzpb.ChannelConnectivityState_State(v), nil
}

func stateNames() []string {
	names := make([]string, 0, len(channelzpb.ChannelConnectivityState_State_value))
	for name := range channelzpb.ChannelConnectivityState_State_value {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelRepr renders a channel for logs.
func ChannelRepr(ch *channelzpb.Channel) string {
	data := ch.GetData()
	return fmt.Sprintf("channel #%d target=%s state=%s calls{started=%d succeeded=%d failed=%d} subchannels=%d",
		ch.GetRef().GetChannelId(),
		data.GetTarget(),
		data.GetState().GetState(),
		data.GetCallsStarted(),
		data.GetCallsSucceeded(),
		data.GetCallsFailed(),
		len(ch.GetSubchannelRef()))
}

// SubchannelRepr renders a subchannel for logs.
func SubchannelRepr(sc *channelzpb.Subchannel) string {
	data := sc.GetData()
	return fmt.Sprintf("subchannel #%d target=%s state=%s sockets=%d",
		sc.GetRef().GetSubchannelId(),
		data.GetTarget(),
		data.GetState().GetState(),
		len(sc.GetSocketRef()))
}

// SocketRepr renders a socket for logs.
func SocketRepr(s *channelzpb.Socket) string {
	return fmt.Sprintf("socket #%d name=%s", s.GetRef().GetSocketId(), s.GetRef().GetName())
}
