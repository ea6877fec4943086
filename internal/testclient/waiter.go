package testclient

import (
	"context"
	"errors"
	"time"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"

	"xdsprobe/internal/channelz"
	"xdsprobe/internal/retry"
)

// Polling defaults, tuned for waiting on a remote channel. Waits are kept
// well under the per-RPC deadline so a single slow introspection call
// cannot consume the whole budget.
const (
	DefaultWaitMin     = 10 * time.Second
	DefaultWaitMax     = 25 * time.Second
	DefaultWaitTimeout = 5 * time.Minute
)

type waitOptions struct {
	timeout         time.Duration
	rpcDeadline     time.Duration
	controlPlaneURI string
}

// WaitOption overrides a polling default for one wait invocation.
type WaitOption func(*waitOptions)

// WithTimeout overrides the overall convergence timeout.
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithRPCDeadline overrides the per-introspection-call deadline.
func WithRPCDeadline(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.rpcDeadline = d }
}

// WithControlPlaneURI overrides the control-plane target for one wait.
func WithControlPlaneURI(uri string) WaitOption {
	return func(o *waitOptions) { o.controlPlaneURI = uri }
}

func (c *Client) waitOptions(opts []WaitOption) waitOptions {
	o := waitOptions{
		timeout:     DefaultWaitTimeout,
		rpcDeadline: channelz.DefaultCallDeadline,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitForServerChannelReady waits for the channel to the server to reach
// READY. On exhaustion caused by the channel never reaching the state, the
// returned error carries a reachability hint.
func (c *Client) WaitForServerChannelReady(ctx context.Context, opts ...WaitOption) (*channelzpb.Channel, error) {
	ch, err := c.WaitForServerChannelState(ctx, channelzpb.ChannelConnectivityState_READY, opts...)
	if err != nil {
		attachHint(err, "the client couldn't connect to the server")
		return nil, err
	}
	return ch, nil
}

// WaitForServerChannelState polls until a channel to the server target
// reaches state (with a subchannel in the same state), or the timeout
// elapses.
func (c *Client) WaitForServerChannelState(ctx context.Context, state channelzpb.ChannelConnectivityState_State, opts ...WaitOption) (*channelzpb.Channel, error) {
	o := c.waitOptions(opts)
	retryer := c.newRetryer(o)

	c.log.Info("waiting to report a channel in state",
		"state", state,
		"target", c.cfg.ServerTarget,
		"timeout", o.timeout)

	var found *channelzpb.Channel
	err := retryer.Do(ctx, func(ctx context.Context) error {
		ch, err := c.FindServerChannelWithState(ctx, state, o.rpcDeadline, true)
		if err != nil {
			return err
		}
		found = ch
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("channel transitioned to state",
		"state", state,
		"target", c.cfg.ServerTarget,
		"channel", channelz.ChannelRepr(found))
	return found, nil
}

// WaitForControlPlaneChannelActive polls until the channel to the control
// plane shows successful traffic, or the timeout elapses. On exhaustion
// caused by no channel ever turning active, the returned error carries a
// reachability hint.
func (c *Client) WaitForControlPlaneChannelActive(ctx context.Context, opts ...WaitOption) (*channelzpb.Channel, error) {
	o := c.waitOptions(opts)
	uri := o.controlPlaneURI
	if uri == "" {
		uri = c.controlPlaneURI()
	}
	retryer := c.newRetryer(o)

	c.log.Info("waiting for successful calls to the control plane",
		"target", uri,
		"timeout", o.timeout)

	var found *channelzpb.Channel
	err := retryer.Do(ctx, func(ctx context.Context) error {
		ch, err := c.FindActiveControlPlaneChannel(ctx, uri, o.rpcDeadline)
		if err != nil {
			return err
		}
		found = ch
		return nil
	})
	if err != nil {
		attachHint(err, "the client couldn't connect to the control plane")
		return nil, err
	}

	c.log.Info("detected successful calls to the control plane",
		"target", uri,
		"channel", channelz.ChannelRepr(found))
	return found, nil
}

func (c *Client) newRetryer(o waitOptions) *retry.Retryer {
	waitMin, waitMax := c.waitMin, c.waitMax
	if waitMin <= 0 {
		waitMin = DefaultWaitMin
	}
	if waitMax <= 0 {
		waitMax = DefaultWaitMax
	}
	r := retry.NewExponential(waitMin, waitMax, o.timeout)
	r.Log = c.log
	return r
}

// attachHint sets the diagnostic hint on the not-found error behind a
// retry exhaustion, when there is one. Transport failures pass through
// untouched.
func attachHint(err error, hint string) {
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		return
	}
	var notFound *ChannelNotFoundError
	if errors.As(exhausted.LastErr, &notFound) {
		notFound.Hint = hint
		return
	}
	var notActive *ChannelNotActiveError
	if errors.As(exhausted.LastErr, &notActive) {
		notActive.Hint = hint
	}
}
