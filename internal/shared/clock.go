package shared

import "time"

// Clock supplies current time so services stay deterministic under test.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time { return time.Now().UTC() }

// Identity resolves the acting user for audit trails.
type Identity interface {
	CurrentActor() int64
}

// StaticIdentity is a fixed-actor identity, used by jobs and tests.
type StaticIdentity int64

// CurrentActor returns the fixed actor id.
func (s StaticIdentity) CurrentActor() int64 { return int64(s) }
