// Package status mirrors live job state into Redis so the API can
// answer status polls without hitting Postgres.
package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cardposter/worker/model"
)

const (
	statusKeyPrefix   = "export:status:"
	progressKeyPrefix = "export:progress:"
	entryTTL          = 30 * time.Minute
)

// Snapshot is what a status poll sees mid-job.
type Snapshot struct {
	Status   string          `json:"status"`
	Progress *model.Progress `json:"progress,omitempty"`
}

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) SetStatus(ctx context.Context, jobID string, status string) error {
	return c.client.Set(ctx, statusKeyPrefix+jobID, status, entryTTL).Err()
}

func (c *Cache) SetProgress(ctx context.Context, jobID string, p model.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, progressKeyPrefix+jobID, data, entryTTL).Err()
}

func (c *Cache) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	status, err := c.client.Get(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Status: status}
	data, err := c.client.Get(ctx, progressKeyPrefix+jobID).Bytes()
	if err == nil {
		var p model.Progress
		if json.Unmarshal(data, &p) == nil {
			snap.Progress = &p
		}
	}
	return snap, nil
}
