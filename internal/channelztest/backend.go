// Package channelztest provides an in-process channelz service backed by a
// settable snapshot, for exercising the polling stack against real gRPC
// plumbing without a live process to introspect.
package channelztest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// Backend implements the channelz query service over a snapshot that tests
// swap at will. Lookups against the current snapshot are answered the way a
// real channelz endpoint would, including NOT_FOUND for dangling references.
type Backend struct {
	channelzpb.UnimplementedChannelzServer

	mu              sync.Mutex
	channels        []*channelzpb.Channel
	subchannels     map[int64]*channelzpb.Subchannel
	sockets         map[int64]*channelzpb.Socket
	pageSize        int
	failWith        error
	topChannelCalls int
}

// TopChannelCalls reports how many GetTopChannels requests were served.
func (b *Backend) TopChannelCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topChannelCalls
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		subchannels: map[int64]*channelzpb.Subchannel{},
		sockets:     map[int64]*channelzpb.Socket{},
	}
}

// Serve registers b on a bufconn gRPC server and returns a client
// connection to it. Both are torn down when the test finishes.
func Serve(t *testing.T, b *Backend) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	channelzpb.RegisterChannelzServer(srv, b)
	go func() {
		if err := srv.Serve(lis); err != nil {
			t.Logf("bufconn serve: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return conn
}

// SetChannels replaces the top-level channel list.
func (b *Backend) SetChannels(channels ...*channelzpb.Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = channels
}

// SetSubchannels replaces the subchannel table.
func (b *Backend) SetSubchannels(subchannels ...*channelzpb.Subchannel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subchannels = map[int64]*channelzpb.Subchannel{}
	for _, sc := range subchannels {
		b.subchannels[sc.GetRef().GetSubchannelId()] = sc
	}
}

// SetSockets replaces the socket table.
func (b *Backend) SetSockets(sockets ...*channelzpb.Socket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sockets = map[int64]*channelzpb.Socket{}
	for _, s := range sockets {
		b.sockets[s.GetRef().GetSocketId()] = s
	}
}

// SetPageSize caps how many channels one GetTopChannels response carries,
// forcing clients to paginate. Zero means everything in one page.
func (b *Backend) SetPageSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageSize = n
}

// FailWith makes every RPC fail with err until cleared with nil.
func (b *Backend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

func (b *Backend) GetTopChannels(_ context.Context, req *channelzpb.GetTopChannelsRequest) (*channelzpb.GetTopChannelsResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topChannelCalls++
	if b.failWith != nil {
		return nil, b.failWith
	}

	var page []*channelzpb.Channel
	end := true
	for _, ch := range b.channels {
		if ch.GetRef().GetChannelId() < req.GetStartChannelId() {
			continue
		}
		if b.pageSize > 0 && len(page) == b.pageSize {
			end = false
			break
		}
		page = append(page, ch)
	}
	return &channelzpb.GetTopChannelsResponse{Channel: page, End: end}, nil
}

func (b *Backend) GetSubchannel(_ context.Context, req *channelzpb.GetSubchannelRequest) (*channelzpb.GetSubchannelResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return nil, b.failWith
	}
	sc, ok := b.subchannels[req.GetSubchannelId()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "subchannel %d not found", req.GetSubchannelId())
	}
	return &channelzpb.GetSubchannelResponse{Subchannel: sc}, nil
}

func (b *Backend) GetSocket(_ context.Context, req *channelzpb.GetSocketRequest) (*channelzpb.GetSocketResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return nil, b.failWith
	}
	s, ok := b.sockets[req.GetSocketId()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "socket %d not found", req.GetSocketId())
	}
	return &channelzpb.GetSocketResponse{Socket: s}, nil
}
