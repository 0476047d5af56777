package cache

import (
	"context"
	"encoding/json"
	"time"

	"cardposter/api/database"
	"cardposter/api/models"
	"cardposter/worker/model"
)

// Key layout shared with the worker's status mirror.
const (
	statusKeyPrefix   = "export:status:"
	progressKeyPrefix = "export:progress:"
	statusTTL         = 30 * time.Minute
)

// Snapshot is the live view of a job: its status plus, while
// resolving, the latest progress counts.
type Snapshot struct {
	Status   models.JobStatus
	Progress *model.Progress
}

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	status, err := sc.cache.Get(ctx, statusKeyPrefix+jobID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Status: models.JobStatus(status)}
	if data, err := sc.cache.GetBytes(ctx, progressKeyPrefix+jobID); err == nil {
		var p model.Progress
		if json.Unmarshal(data, &p) == nil {
			snap.Progress = &p
		}
	}
	return snap, nil
}

func (sc *StatusCache) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	return sc.cache.Set(ctx, statusKeyPrefix+jobID, string(status), statusTTL)
}

func (sc *StatusCache) Delete(ctx context.Context, jobID string) error {
	return sc.cache.Del(ctx, statusKeyPrefix+jobID, progressKeyPrefix+jobID)
}
