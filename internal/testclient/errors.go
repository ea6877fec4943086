package testclient

import (
	"errors"
	"fmt"

	channelzpb "google.golang.org/grpc/channelz/grpc_channelz_v1"
)

// ErrNotFound marks a transient miss: the introspected snapshot had no
// object satisfying the predicate. The retry layer treats these as "keep
// polling"; anything else aborts the wait.
var ErrNotFound = errors.New("not found")

// ChannelNotFoundError reports that no channel to Dst satisfied
// ExpectedState after a full snapshot scan. Hint carries an optional
// reachability diagnosis attached by the waiter layer on exhaustion.
type ChannelNotFoundError struct {
	Src           string
	Dst           string
	ExpectedState channelzpb.ChannelConnectivityState_State
	Hint          string
}

func (e *ChannelNotFoundError) Error() string {
	msg := fmt.Sprintf("[%s] no %s channel to %s", e.Src, e.ExpectedState, e.Dst)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

func (e *ChannelNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ChannelNotActiveError reports that channels to Dst exist but none has
// completed more calls than it has failed.
type ChannelNotActiveError struct {
	Src  string
	Dst  string
	Hint string
}

func (e *ChannelNotActiveError) Error() string {
	msg := fmt.Sprintf("[%s] no active channel to %s", e.Src, e.Dst)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

func (e *ChannelNotActiveError) Is(target error) bool { return target == ErrNotFound }

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
