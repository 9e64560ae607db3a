package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// RedisStore implements the counter-store contract on Redis, for
// deployments where several processes share one experiment's counters.
//
// Key layout under "vanity:<experiment>:":
//
//	alts:<i>:participants  SET of identities
//	alts:<i>:converted     SET of identities
//	alts:<i>:conversions   INT, total conversion events
//	assignment:<identity>  INT, written with SETNX (first writer wins)
//	enabled / outcome / created_at / completed_at
//
// Sets give participant dedup without read-modify-write, so racing
// recorders can never double-increment one identity.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects and verifies the connection before returning.
func OpenRedis(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(experimentID string, parts ...string) string {
	k := "vanity:" + experimentID
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func altKey(experimentID string, alternative int, field string) string {
	return key(experimentID, "alts", strconv.Itoa(alternative), field)
}

func (s *RedisStore) Counts(ctx context.Context, experimentID string, alternative int) (experiment.Counts, error) {
	pipe := s.client.Pipeline()
	participants := pipe.SCard(ctx, altKey(experimentID, alternative, "participants"))
	converted := pipe.SCard(ctx, altKey(experimentID, alternative, "converted"))
	conversions := pipe.Get(ctx, altKey(experimentID, alternative, "conversions"))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return experiment.Counts{}, fmt.Errorf("failed to read counts: %w", err)
	}

	c := experiment.Counts{
		Participants: int(participants.Val()),
		Converted:    int(converted.Val()),
	}
	if n, err := conversions.Int(); err == nil {
		c.Conversions = n
	}
	return c, nil
}

func (s *RedisStore) AddParticipant(ctx context.Context, experimentID string, alternative int, identity string) error {
	err := s.client.SAdd(ctx, altKey(experimentID, alternative, "participants"), identity).Err()
	if err != nil {
		return fmt.Errorf("failed to record participant: %w", err)
	}
	return nil
}

func (s *RedisStore) AddConversion(ctx context.Context, experimentID string, alternative int, identity string) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, altKey(experimentID, alternative, "converted"), identity)
	pipe.Incr(ctx, altKey(experimentID, alternative, "conversions"))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

func (s *RedisStore) Assignment(ctx context.Context, experimentID, identity string) (int, bool, error) {
	val, err := s.client.Get(ctx, key(experimentID, "assignment", identity)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up assignment: %w", err)
	}
	index, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("malformed assignment %q: %w", val, err)
	}
	return index, true, nil
}

func (s *RedisStore) SetAssignment(ctx context.Context, experimentID, identity string, alternative int) error {
	err := s.client.SetNX(ctx, key(experimentID, "assignment", identity), alternative, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to persist assignment: %w", err)
	}
	return nil
}

func (s *RedisStore) Enabled(ctx context.Context, experimentID string) (bool, error) {
	val, err := s.client.Get(ctx, key(experimentID, "enabled")).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read enabled flag: %w", err)
	}
	return val == "1", nil
}

func (s *RedisStore) SetEnabled(ctx context.Context, experimentID string, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, key(experimentID, "enabled"), val, 0).Err(); err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	return nil
}

func (s *RedisStore) CreatedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	return s.timeField(ctx, key(experimentID, "created_at"))
}

func (s *RedisStore) SetCreatedAt(ctx context.Context, experimentID string, t time.Time) error {
	return s.setTimeField(ctx, key(experimentID, "created_at"), t)
}

func (s *RedisStore) CompletedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	return s.timeField(ctx, key(experimentID, "completed_at"))
}

func (s *RedisStore) SetCompletedAt(ctx context.Context, experimentID string, t time.Time) error {
	return s.setTimeField(ctx, key(experimentID, "completed_at"), t)
}

func (s *RedisStore) timeField(ctx context.Context, k string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, k).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read %s: %w", k, err)
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed timestamp %q: %w", val, err)
	}
	return time.Unix(unix, 0), true, nil
}

func (s *RedisStore) setTimeField(ctx context.Context, k string, t time.Time) error {
	if err := s.client.Set(ctx, k, t.Unix(), 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) Outcome(ctx context.Context, experimentID string) (int, bool, error) {
	val, err := s.client.Get(ctx, key(experimentID, "outcome")).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read outcome: %w", err)
	}
	index, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("malformed outcome %q: %w", val, err)
	}
	return index, true, nil
}

func (s *RedisStore) SetOutcome(ctx context.Context, experimentID string, alternative int) error {
	if err := s.client.Set(ctx, key(experimentID, "outcome"), alternative, 0).Err(); err != nil {
		return fmt.Errorf("failed to set outcome: %w", err)
	}
	return nil
}

// Destroy scans out every key under the experiment's prefix. An
// administrative operation; not expected on the serving path.
func (s *RedisStore) Destroy(ctx context.Context, experimentID string) error {
	iter := s.client.Scan(ctx, 0, key(experimentID)+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to destroy %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan experiment keys: %w", err)
	}
	return nil
}
