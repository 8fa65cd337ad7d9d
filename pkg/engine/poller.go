package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultPollInterval is the interval between status reads.
const DefaultPollInterval = time.Second

// DefaultWaitTimeout bounds every status wait.
const DefaultWaitTimeout = 10 * time.Minute

// errStatusNotReached is returned by a poll attempt whose status does not match.
var errStatusNotReached = errors.New("status not reached")

// TransportPoller implements StatusPoller by reading the partition through
// the transport at a constant interval.
type TransportPoller struct {
	transport Transport
	interval  time.Duration
}

// NewTransportPoller creates a poller. A non-positive interval selects
// DefaultPollInterval.
func NewTransportPoller(transport Transport, interval time.Duration) *TransportPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &TransportPoller{transport: transport, interval: interval}
}

// WaitForStatus polls until the partition status is one of want or timeout
// elapses. A failing read aborts the wait with an OperationError.
func (p *TransportPoller) WaitForStatus(ctx context.Context, uri string, want []PartitionStatus, timeout time.Duration) (*Partition, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	var last *Partition
	poll := func() (*Partition, error) {
		part, err := p.transport.GetPartition(ctx, uri)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if part == nil {
			return nil, backoff.Permanent(fmt.Errorf("partition %s disappeared while waiting for status", uri))
		}
		last = part
		if statusIn(part.Status, want) {
			return part, nil
		}
		return part, fmt.Errorf("%w: partition status is %s", errStatusNotReached, part.Status)
	}

	part, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.interval)),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err == nil {
		return part, nil
	}

	switch {
	case errors.Is(err, errStatusNotReached), errors.Is(err, context.DeadlineExceeded):
		status := PartitionStatus("unknown")
		if last != nil {
			status = last.Status
		}
		return last, NewTimeoutError(
			fmt.Sprintf("partition did not reach status %v within %s (last status %s)", want, timeout, status), nil).
			WithResource(uri)
	case errors.Is(err, context.Canceled):
		return last, NewOperationError("status wait cancelled", err).WithResource(uri)
	default:
		return last, AsOperationError("failed to read partition status", err)
	}
}

func statusIn(s PartitionStatus, set []PartitionStatus) bool {
	for _, want := range set {
		if s == want {
			return true
		}
	}
	return false
}
