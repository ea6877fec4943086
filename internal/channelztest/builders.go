package channelztest

import (
	"fmt"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
)

// ChannelSpec describes one top-level channel for snapshot construction.
type ChannelSpec struct {
	ID            int64
	Target        string
	State         channelzpb.ChannelConnectivityState_State
	CallsStarted  int64
	CallsFailed   int64
	SubchannelIDs []int64
}

// Channel builds a channelz channel proto from a spec.
func Channel(spec ChannelSpec) *channelzpb.Channel {
	refs := make([]*channelzpb.SubchannelRef, 0, len(spec.SubchannelIDs))
	for _, id := range spec.SubchannelIDs {
		refs = append(refs, &channelzpb.SubchannelRef{
			SubchannelId: id,
			Name:         fmt.Sprintf("subchannel-%d", id),
		})
	}
	return &channelzpb.Channel{
		Ref: &channelzpb.ChannelRef{
			ChannelId: spec.ID,
			Name:      fmt.Sprintf("channel-%d", spec.ID),
		},
		Data: &channelzpb.ChannelData{
			State:        &channelzpb.ChannelConnectivityState{State: spec.State},
			Target:       spec.Target,
			CallsStarted: spec.CallsStarted,
			CallsFailed:  spec.CallsFailed,
		},
		SubchannelRef: refs,
	}
}

// Subchannel builds a channelz subchannel proto referencing the given sockets.
func Subchannel(id int64, state channelzpb.ChannelConnectivityState_State, socketIDs ...int64) *channelzpb.Subchannel {
	refs := make([]*channelzpb.SocketRef, 0, len(socketIDs))
	for _, sid := range socketIDs {
		refs = append(refs, &channelzpb.SocketRef{
			SocketId: sid,
			Name:     fmt.Sprintf("socket-%d", sid),
		})
	}
	return &channelzpb.Subchannel{
		Ref: &channelzpb.SubchannelRef{
			SubchannelId: id,
			Name:         fmt.Sprintf("subchannel-%d", id),
		},
		Data: &channelzpb.ChannelData{
			State: &channelzpb.ChannelConnectivityState{State: state},
		},
		SocketRef: refs,
	}
}

// Socket builds a channelz socket proto.
func Socket(id int64) *channelzpb.Socket {
	return &channelzpb.Socket{
		Ref: &channelzpb.SocketRef{
			SocketId: id,
			Name:     fmt.Sprintf("socket-%d", id),
		},
	}
}
