package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"musico/internal/metrics"
)

const (
	DefaultKeyPrefix = "queue:"
	DefaultTTL       = 24 * time.Hour
)

// Store keeps one queue per user in Redis. Every write resets the expiry.
//
// Store never returns errors: an unreachable Redis reads as "no queue" and
// writes report false. Concurrent writers for one user race; the last write
// wins.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewStore(rdb redis.Cmdable, prefix string, ttl time.Duration, log zerolog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "queue-store").Logger(),
	}
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

// GetQueue returns the stored queue, or false if there is none or Redis failed.
func (s *Store) GetQueue(ctx context.Context, userID string) (*Queue, bool) {
	raw, err := s.rdb.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordQueueOp("get", true)
		return nil, false
	}
	if err != nil {
		metrics.RecordQueueOp("get", false)
		s.log.Warn().Err(err).Str("user_id", userID).Msg("get queue failed")
		return nil, false
	}

	var q Queue
	if err := json.Unmarshal(raw, &q); err != nil {
		metrics.RecordQueueOp("get", false)
		s.log.Error().Err(err).Str("user_id", userID).Msg("stored queue is not valid JSON")
		return nil, false
	}
	if q.Tracks == nil {
		q.Tracks = []Track{}
	}
	metrics.RecordQueueOp("get", true)
	return &q, true
}

// SetQueue overwrites the user's queue and resets its expiry.
func (s *Store) SetQueue(ctx context.Context, userID string, q *Queue) bool {
	data, err := json.Marshal(q)
	if err != nil {
		metrics.RecordQueueOp("set", false)
		s.log.Error().Err(err).Str("user_id", userID).Msg("encode queue failed")
		return false
	}
	if err := s.rdb.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		metrics.RecordQueueOp("set", false)
		s.log.Warn().Err(err).Str("user_id", userID).Msg("set queue failed")
		return false
	}
	metrics.RecordQueueOp("set", true)
	return true
}

// AddTracks inserts tracks at pos, creating the queue if needed. The bool
// reports whether the result was persisted.
func (s *Store) AddTracks(ctx context.Context, userID string, tracks []Track, pos Position) (*Queue, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		q = NewQueue()
	}
	q.Insert(tracks, pos)
	return q, s.SetQueue(ctx, userID, q)
}

// RemoveTracks drops every track in trackIDs. A nil queue means none existed.
func (s *Store) RemoveTracks(ctx context.Context, userID string, trackIDs []string) (*Queue, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		return nil, false
	}
	q.Remove(trackIDs)
	return q, s.SetQueue(ctx, userID, q)
}

// ReorderQueue rearranges the queue to follow order.
func (s *Store) ReorderQueue(ctx context.Context, userID string, order []string) (*Queue, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		return nil, false
	}
	q.Reorder(order)
	return q, s.SetQueue(ctx, userID, q)
}

// ClearQueue deletes the queue. Clearing a missing queue succeeds.
func (s *Store) ClearQueue(ctx context.Context, userID string) bool {
	if err := s.rdb.Del(ctx, s.key(userID)).Err(); err != nil {
		metrics.RecordQueueOp("clear", false)
		s.log.Warn().Err(err).Str("user_id", userID).Msg("clear queue failed")
		return false
	}
	metrics.RecordQueueOp("clear", true)
	return true
}

// SetCurrentIndex moves the cursor. Out of range indexes leave the queue untouched.
func (s *Store) SetCurrentIndex(ctx context.Context, userID string, index int) (*Queue, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		return nil, false
	}
	if !q.Valid(index) {
		return q, true
	}
	q.Current = index
	return q, s.SetQueue(ctx, userID, q)
}

func (s *Store) GetNextTrack(ctx context.Context, userID string) (*Track, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		return nil, false
	}
	return q.Next()
}

func (s *Store) GetPreviousTrack(ctx context.Context, userID string) (*Track, bool) {
	q, ok := s.GetQueue(ctx, userID)
	if !ok {
		return nil, false
	}
	return q.Previous()
}
