package roomcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coregx/roomcast/model"
)

// ChannelCache defines the cache backend for resolved channel sets.
// Injected rather than global so tests can substitute an in-memory fake with
// a controllable clock.
//
// Implementations must be safe for concurrent use. Invalidation for a given
// subscriber is a single atomic delete and may race harmlessly with a
// concurrent Get for the same subscriber (worst case: one extra
// recomputation, never incorrect data).
type ChannelCache interface {
	// Get returns the cached channel set for a subscriber.
	// The second return value reports whether a live entry was found.
	Get(ctx context.Context, subscriberID int64) (model.ChannelSet, bool, error)

	// Set stores the channel set for a subscriber with the given TTL.
	Set(ctx context.Context, subscriberID int64, channels model.ChannelSet, ttl time.Duration) error

	// Invalidate deletes the subscriber's entry. Delete-on-write, never an
	// update-in-place, to avoid partial-update races.
	Invalidate(ctx context.Context, subscriberID int64) error
}

// MemoryChannelCache is the default in-process ChannelCache.
// Entries expire lazily on read; Invalidate deletes eagerly.
type MemoryChannelCache struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	channels  model.ChannelSet
	expiresAt time.Time
}

// NewMemoryChannelCache creates an empty in-memory channel cache.
func NewMemoryChannelCache() *MemoryChannelCache {
	return &MemoryChannelCache{
		entries: make(map[int64]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the live cached channel set for a subscriber, if any.
func (c *MemoryChannelCache) Get(_ context.Context, subscriberID int64) (model.ChannelSet, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[subscriberID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.channels, true, nil
}

// Set stores the channel set for a subscriber with the given TTL.
func (c *MemoryChannelCache) Set(_ context.Context, subscriberID int64, channels model.ChannelSet, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[subscriberID] = cacheEntry{channels: channels, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate deletes the subscriber's entry.
func (c *MemoryChannelCache) Invalidate(_ context.Context, subscriberID int64) error {
	c.mu.Lock()
	delete(c.entries, subscriberID)
	c.mu.Unlock()
	return nil
}

// TopicCache resolves the set of channels a subscriber may read, memoized
// behind a TTL so token issuance doesn't hit the membership source of record
// every time.
//
// Correctness bound: a stale entry can at worst delay a subscriber seeing a
// newly joined room's messages by up to one TTL window. It never grants
// access to a room the subscriber never joined — the channel set is always a
// subset computed from real memberships.
//
// Failure mode: if the cache backend errors, Resolve falls through to direct
// recomputation from the source of record (higher latency, same correctness).
//
// Thread safety: safe for concurrent use.
type TopicCache struct {
	cache          ChannelCache
	membershipRepo MembershipRepository
	roomRepo       RoomRepository
	ttl            time.Duration
	logger         Logger
}

// TopicCacheOption configures a TopicCache.
type TopicCacheOption func(*TopicCache) error

// NewTopicCache creates a new TopicCache with the provided options.
//
// Required options:
//   - WithTopicCacheRepositories: membership and room repositories
//   - WithTopicCacheLogger: logger instance
//
// Optional options:
//   - WithChannelCache: cache backend (default: in-memory)
//   - WithTopicCacheTTL: entry TTL (default: 5 minutes)
func NewTopicCache(opts ...TopicCacheOption) (*TopicCache, error) {
	tc := &TopicCache{
		cache: NewMemoryChannelCache(),
		ttl:   5 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(tc); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply topic cache option", err)
		}
	}

	if tc.membershipRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MembershipRepository is required (use WithTopicCacheRepositories)")
	}
	if tc.roomRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "RoomRepository is required (use WithTopicCacheRepositories)")
	}
	if tc.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithTopicCacheLogger)")
	}

	return tc, nil
}

// WithTopicCacheRepositories sets the required repository dependencies.
func WithTopicCacheRepositories(membershipRepo MembershipRepository, roomRepo RoomRepository) TopicCacheOption {
	return func(tc *TopicCache) error {
		if membershipRepo == nil {
			return fmt.Errorf("membershipRepo cannot be nil")
		}
		if roomRepo == nil {
			return fmt.Errorf("roomRepo cannot be nil")
		}
		tc.membershipRepo = membershipRepo
		tc.roomRepo = roomRepo
		return nil
	}
}

// WithTopicCacheLogger sets the logger instance.
func WithTopicCacheLogger(logger Logger) TopicCacheOption {
	return func(tc *TopicCache) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		tc.logger = logger
		return nil
	}
}

// WithChannelCache sets a custom cache backend.
func WithChannelCache(cache ChannelCache) TopicCacheOption {
	return func(tc *TopicCache) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		tc.cache = cache
		return nil
	}
}

// WithTopicCacheTTL sets the cache entry TTL.
// This is also the acceptable staleness bound should an invalidation signal
// ever be missed.
func WithTopicCacheTTL(ttl time.Duration) TopicCacheOption {
	return func(tc *TopicCache) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be > 0, got %v", ttl)
		}
		tc.ttl = ttl
		return nil
	}
}

// Resolve returns the channel set the subscriber may read.
//
// On a cache hit within TTL the cached value is returned with no
// recomputation. On a miss the set is recomputed from the membership source
// of record, stored with the TTL, and returned. A failing cache backend
// degrades to recomputation and is logged, never surfaced.
func (tc *TopicCache) Resolve(ctx context.Context, subscriberID int64) (model.ChannelSet, error) {
	if subscriberID == 0 {
		return nil, NewError(ErrCodeValidation, "subscriber ID is required")
	}

	channels, ok, err := tc.cache.Get(ctx, subscriberID)
	if err != nil {
		tc.logger.Warnf("Channel cache unavailable, recomputing directly: subscriber=%d, error=%v", subscriberID, err)
	} else if ok {
		tc.logger.Debugf("Channel cache hit: subscriber=%d, channels=%d", subscriberID, len(channels))
		return channels, nil
	}

	channels, err = tc.computeChannels(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	if err := tc.cache.Set(ctx, subscriberID, channels, tc.ttl); err != nil {
		tc.logger.Warnf("Failed to store channel cache entry: subscriber=%d, error=%v", subscriberID, err)
	}

	tc.logger.Debugf("Channel set resolved: subscriber=%d, channels=%d", subscriberID, len(channels))
	return channels, nil
}

// Invalidate drops the subscriber's cache entry. Called by the
// membership-mutation collaborator on every join and leave, before the next
// Resolve call the mutation can influence.
func (tc *TopicCache) Invalidate(ctx context.Context, subscriberID int64) error {
	if err := tc.cache.Invalidate(ctx, subscriberID); err != nil {
		tc.logger.Warnf("Failed to invalidate channel cache entry: subscriber=%d, error=%v", subscriberID, err)
		return NewErrorWithCause(ErrCodeCacheUnavailable, "failed to invalidate cache entry", err)
	}
	return nil
}

// computeChannels derives the channel set from the subscriber's active
// memberships: one enumerated channel per bounded room, plus the constant
// private inbox channel for unbounded-room traffic.
func (tc *TopicCache) computeChannels(ctx context.Context, subscriberID int64) (model.ChannelSet, error) {
	memberships, err := tc.membershipRepo.FindActiveBySubscriber(ctx, subscriberID)
	if err != nil && !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeMembershipResolution, "failed to load memberships", err)
	}

	channels := model.ChannelSet{model.InboxChannel(subscriberID)}
	for _, m := range memberships {
		room, err := tc.roomRepo.Load(ctx, m.RoomID)
		if err != nil {
			if IsNoData(err) {
				tc.logger.Warnf("Membership %d references missing room %d, skipping", m.ID, m.RoomID)
				continue
			}
			return nil, NewErrorWithCause(ErrCodeMembershipResolution, "failed to load room", err)
		}
		if room.IsBounded() && room.IsActive {
			channels = append(channels, room.Channel())
		}
	}

	sort.Strings(channels)
	return channels, nil
}
