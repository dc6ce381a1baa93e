package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
)

// PrecheckTimeout is the bound on the raw TCP reachability pre-check
// (spec.md §4.3).
const PrecheckTimeout = 2 * time.Second

// ReachabilityCache lets BaseClient skip a redundant dial for a
// recently-checked host:port (spec.md §4.3 AMBIENT note in
// SPEC_FULL.md §4.3). A nil cache (the default) means every pre-check
// dials fresh.
type ReachabilityCache interface {
	// Get reports a cached reachability outcome for hostPort, if any
	// entry is still live.
	Get(ctx context.Context, hostPort string) (reachable bool, ok bool)
	// Put records the outcome of a fresh dial.
	Put(ctx context.Context, hostPort string, reachable bool)
}

// precheck performs the TCP reachability pre-check described in
// spec.md §4.3: on failure it returns a *connerrors.ConnectionFailed
// naming the host:port and a firewall hint, the way the spec's
// rationale calls for failing fast on DNS/firewall misconfigurations.
func precheck(ctx context.Context, hostPort string, cache ReachabilityCache) error {
	if cache != nil {
		if reachable, ok := cache.Get(ctx, hostPort); ok {
			if reachable {
				return nil
			}
			return newPrecheckFailure(hostPort)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, PrecheckTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", hostPort)
	if err != nil {
		if cache != nil {
			cache.Put(ctx, hostPort, false)
		}
		return fmt.Errorf("tcp pre-check: %w", newPrecheckFailureWithCause(hostPort, err))
	}
	_ = conn.Close()

	if cache != nil {
		cache.Put(ctx, hostPort, true)
	}
	return nil
}

func newPrecheckFailure(hostPort string) error {
	return &connerrors.ConnectionFailed{
		HostPort:    hostPort,
		Description: "could not reach host:port; check DNS and firewall rules",
	}
}

func newPrecheckFailureWithCause(hostPort string, cause error) error {
	return &connerrors.ConnectionFailed{
		HostPort:    hostPort,
		Description: "could not reach host:port; check DNS and firewall rules",
		Cause:       cause,
	}
}
