package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fleet-audit/internal/domain/audit"
)

const recentRunsKey = "audit:runs"

// RunStore keeps finished audit results in Redis for a limited time.
// It backs the HTTP service when no database is configured.
type RunStore struct {
	client    *Client
	ttl       time.Duration
	maxRecent int64
}

// NewRunStore creates a run store; results expire after ttl and at most maxRecent are indexed
func NewRunStore(client *Client, ttl time.Duration, maxRecent int) *RunStore {
	if maxRecent <= 0 {
		maxRecent = 100
	}
	return &RunStore{client: client, ttl: ttl, maxRecent: int64(maxRecent)}
}

func runKey(id uuid.UUID) string {
	return fmt.Sprintf("audit:run:%s", id.String())
}

// Save stores the result and indexes it by start time
func (s *RunStore) Save(ctx context.Context, result *audit.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode audit run: %w", err)
	}

	if err := s.client.Set(ctx, runKey(result.RunID), string(data), s.ttl); err != nil {
		return fmt.Errorf("failed to store audit run: %w", err)
	}

	member := redis.Z{
		Score:  float64(result.StartedAt.Unix()),
		Member: result.RunID.String(),
	}
	if err := s.client.ZAdd(ctx, recentRunsKey, member); err != nil {
		return fmt.Errorf("failed to index audit run: %w", err)
	}

	// keep only the newest maxRecent entries in the index
	if err := s.client.ZRemRangeByRank(ctx, recentRunsKey, 0, -s.maxRecent-1); err != nil {
		return fmt.Errorf("failed to trim audit index: %w", err)
	}
	return nil
}

// GetByID returns a stored run or audit.ErrRunNotFound
func (s *RunStore) GetByID(ctx context.Context, runID uuid.UUID) (*audit.Result, error) {
	raw, err := s.client.Get(ctx, runKey(runID))
	if errors.Is(err, redis.Nil) {
		return nil, audit.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit run: %w", err)
	}

	var result audit.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode audit run: %w", err)
	}
	return &result, nil
}

// ListRecent returns up to limit runs, newest first. Expired runs are skipped.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*audit.Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := s.client.ZRevRange(ctx, recentRunsKey, 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "audit:run:"+id)
	}
	values, err := s.client.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit runs: %w", err)
	}

	results := make([]*audit.Result, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var result audit.Result
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			continue
		}
		results = append(results, &result)
	}
	return results, nil
}
