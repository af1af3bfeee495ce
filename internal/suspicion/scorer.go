package suspicion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the scoring backend is unreachable.
var ErrUnavailable = errors.New("suspicion backend unavailable")

// Config holds scoring parameters.
type Config struct {
	Threshold int           // score at which the flag is set
	Window    time.Duration // score, flag, and log TTL
	LogCap    int           // entries retained in the activity log
}

// Entry is one activity-log line, most recent first.
type Entry struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// Result is returned by [Scorer.Record] and [Scorer.IsFlagged].
type Result struct {
	Flagged bool
	Count   int64

	// FlaggedNow is set only by Record, on the call that crossed the threshold.
	FlaggedNow bool
}

// Scorer maintains the per-identifier score, flag, and log.
type Scorer struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a scorer on the given client.
func New(redisClient redis.UniversalClient, cfg Config) *Scorer {
	return &Scorer{redis: redisClient, config: cfg}
}

func (s *Scorer) key(identifier string) string {
	return "security:suspicious:" + identifier
}

func (s *Scorer) flagKey(identifier string) string {
	return "security:suspicious:flag:" + identifier
}

func (s *Scorer) logKey(identifier string) string {
	return "security:suspicious:log:" + identifier
}

// Record registers one qualifying event: bumps the windowed score (TTL on
// first bump), pushes a capped log entry (log TTL refreshed on every push),
// and sets the durable flag when the post-increment score reaches the
// threshold. Repeated threshold crossings are no-ops on the flag.
func (s *Scorer) Record(ctx context.Context, identifier, eventType string) (Result, error) {
	count, err := s.redis.Incr(ctx, s.key(identifier)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, s.key(identifier), s.config.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if err := s.push(ctx, identifier, Entry{Type: eventType, Timestamp: time.Now().UTC(), Count: count}); err != nil {
		return Result{}, err
	}

	if count >= int64(s.config.Threshold) {
		set, err := s.redis.SetNX(ctx, s.flagKey(identifier), "1", s.config.Window).Result()
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{Flagged: true, FlaggedNow: set, Count: count}, nil
	}

	return Result{Count: count}, nil
}

// IsFlagged is a pure read of the flag plus the current score. Absent keys
// read as unflagged/zero.
func (s *Scorer) IsFlagged(ctx context.Context, identifier string) (Result, error) {
	flagged, err := s.redis.Exists(ctx, s.flagKey(identifier)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if flagged == 0 {
		return Result{}, nil
	}

	count, err := s.redis.Get(ctx, s.key(identifier)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Result{Flagged: true, Count: count}, nil
}

// Log returns the retained activity entries, most recent first. Entries that
// fail to decode are skipped rather than failing the whole read.
func (s *Scorer) Log(ctx context.Context, identifier string) ([]Entry, error) {
	raw, err := s.redis.LRange(ctx, s.logKey(identifier), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Keys returns every key the scorer may hold for the identifier.
func (s *Scorer) Keys(identifier string) []string {
	return []string{s.key(identifier), s.flagKey(identifier), s.logKey(identifier)}
}

func (s *Scorer) push(ctx context.Context, identifier string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := s.logKey(identifier)
	if err := s.redis.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.redis.LTrim(ctx, key, 0, int64(s.config.LogCap)-1).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.redis.Expire(ctx, key, s.config.Window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
