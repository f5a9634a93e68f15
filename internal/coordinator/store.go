// Package coordinator defines the Coordinator Store capability interface —
// the durable mirror behind the Frontier's processed set and per-host
// queues, and the Duplicate Detector's hash sets — plus a Redis-backed
// implementation of it.
package coordinator

import "context"

// Store is the capability contract the Frontier and Duplicate Detector
// depend on. Any key-value system implementing sets, lists, and a
// liveness check satisfies it; Redis is the implementation provided here.
type Store interface {
	// SAdd adds member to the set at key. Returns whether it was newly added.
	SAdd(ctx context.Context, key, member string) (bool, error)
	// SIsMember reports whether member is present in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)
	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// LPushBack appends value to the end of the list at key.
	LPushBack(ctx context.Context, key, value string) error
	// LRemoveFirstMatch removes the first occurrence of value from the
	// list at key, scanning head to tail.
	LRemoveFirstMatch(ctx context.Context, key, value string) error
	// LRange returns the list elements at key from start to stop (inclusive,
	// 0-indexed; -1 means "to the end").
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LDelete removes the entire list at key.
	LDelete(ctx context.Context, key string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases any underlying connections.
	Close() error
}
