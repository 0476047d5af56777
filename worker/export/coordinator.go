// Package export orchestrates one poster job end to end: plan the
// grid, resolve every card image under a bounded worker pool, paint
// the pages, and report a differentiated result. Individual image
// failures never fail the job; storage failures do.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"cardposter/worker/compose"
	"cardposter/worker/fetch"
	"cardposter/worker/layout"
	"cardposter/worker/model"
	"cardposter/worker/pool"
)

// ErrRenderFailed signals that at least one page artifact could not be
// written. The result still reports which pages succeeded.
var ErrRenderFailed = errors.New("one or more pages failed to render")

// State names the coordinator's phase, for logging and tests.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateResolving State = "resolving"
	StateRendering State = "rendering"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

const (
	defaultDownloadWorkers = 8
	// Render workers stay small so at most a couple of full-resolution
	// canvases are resident at once.
	defaultRenderWorkers = 2
)

// ProgressFunc receives a snapshot after each card resolution.
type ProgressFunc func(model.Progress)

type Coordinator struct {
	fetcher    *fetch.Fetcher
	compositor *compose.Compositor
	logger     *zap.Logger

	DownloadWorkers int
	RenderWorkers   int
	OnProgress      ProgressFunc

	mu    sync.Mutex
	state State
}

func NewCoordinator(fetcher *fetch.Fetcher, compositor *compose.Compositor, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		fetcher:         fetcher,
		compositor:      compositor,
		logger:          logger,
		DownloadWorkers: defaultDownloadWorkers,
		RenderWorkers:   defaultRenderWorkers,
		state:           StateIdle,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("Export state change", zap.String("state", string(s)))
}

// Run executes one export job. Cancellation via ctx is a distinct
// outcome, not an error; page-write failures return ErrRenderFailed
// alongside a result that lists the surviving artifacts.
func (c *Coordinator) Run(ctx context.Context, cards []model.CardRef, cfg model.ExportConfig, outDir string) (*model.Result, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid export config: %w", err)
	}

	c.setState(StatePlanning)
	pages := layout.Plan(cards, cfg)
	if len(pages) == 0 {
		c.setState(StateCompleted)
		c.logger.Info("Nothing to export after filtering")
		return &model.Result{Outcome: model.OutcomeEmpty, Elapsed: time.Since(start)}, nil
	}

	total := 0
	for _, p := range pages {
		total += len(p.Cells)
	}
	c.logger.Info("Export planned",
		zap.Int("cards", total),
		zap.Int("pages", len(pages)),
		zap.String("quality", string(cfg.Quality)),
	)

	resolved, cancelled := c.resolveAll(ctx, pages, cfg, total)
	if cancelled {
		c.setState(StateCancelled)
		res := c.tallyCancelled(resolved, nil, start)
		c.logger.Info("Export cancelled during resolution",
			zap.Int("resolved", len(resolved)),
			zap.Int("total", total),
		)
		return res, nil
	}

	c.setState(StateRendering)
	artifacts, cancelled, renderErr := c.renderAll(ctx, pages, resolved, cfg, start, outDir)
	if cancelled {
		c.setState(StateCancelled)
		res := c.tallyCancelled(resolved, artifacts, start)
		c.logger.Info("Export cancelled during rendering")
		return res, nil
	}

	res := c.tally(pages, resolved, artifacts, start)
	if renderErr != nil {
		c.setState(StateCompleted)
		return res, renderErr
	}

	c.setState(StateCompleted)
	c.logger.Info("Export completed",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("placeholders", res.Placeholders),
		zap.Int("pages", len(res.Artifacts)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// resolveAll fans the planned cards out over the download pool. The
// returned map is keyed by card ID and owned by the caller once the
// pool drains.
func (c *Coordinator) resolveAll(ctx context.Context, pages []layout.Page, cfg model.ExportConfig, total int) (map[string]model.ResolvedImage, bool) {
	c.setState(StateResolving)

	resolved := make(map[string]model.ResolvedImage, total)
	var mu sync.Mutex
	counts := model.Progress{Total: total}

	wp := pool.NewWorkerPool(c.DownloadWorkers)
	cancelled := false

dispatch:
	for _, page := range pages {
		for _, cell := range page.Cells {
			if ctx.Err() != nil {
				cancelled = true
				break dispatch
			}
			card := cell.Card
			wp.Submit(ctx, func(ctx context.Context) {
				img := c.fetcher.Resolve(ctx, card, cfg.CacheOptOut)

				mu.Lock()
				resolved[card.ID] = img
				counts.Done++
				switch img.Origin {
				case model.OriginCache:
					counts.Cache++
				case model.OriginNetwork:
					counts.Network++
				default:
					counts.Placeholders++
				}
				snapshot := counts
				mu.Unlock()

				if c.OnProgress != nil {
					c.OnProgress(snapshot)
				}
			})
		}
	}
	wp.Wait()

	if ctx.Err() != nil {
		cancelled = true
	}
	return resolved, cancelled
}

// renderAll paints every page under the render pool. Pages are
// independent; failures are recorded per page rather than aborting the
// rest.
func (c *Coordinator) renderAll(ctx context.Context, pages []layout.Page, resolved map[string]model.ResolvedImage, cfg model.ExportConfig, exportedAt time.Time, outDir string) ([]model.PageArtifact, bool, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		failed := make([]model.PageArtifact, len(pages))
		for i, page := range pages {
			failed[i] = model.PageArtifact{Page: page.Index, Error: fmt.Sprintf("create output dir: %v", err)}
		}
		return failed, false, ErrRenderFailed
	}

	artifacts := make([]model.PageArtifact, len(pages))
	var mu sync.Mutex
	failed := false

	wp := pool.NewWorkerPool(c.RenderWorkers)
	cancelled := false

	for i, page := range pages {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		i, page := i, page
		name := compose.ArtifactName(cfg.Title, page.Index, len(pages), cfg.Format)
		path := filepath.Join(outDir, name)

		wp.Submit(ctx, func(_ context.Context) {
			err := c.compositor.Render(page, resolved, cfg, len(pages), exportedAt, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = true
				artifacts[i] = model.PageArtifact{Page: page.Index, Error: err.Error()}
				c.logger.Error("Page render failed",
					zap.Int("page", page.Index),
					zap.Error(err),
				)
				return
			}
			artifacts[i] = model.PageArtifact{Page: page.Index, Path: path}
		})
	}
	wp.Wait()

	if ctx.Err() != nil {
		cancelled = true
	}
	var err error
	if failed {
		err = ErrRenderFailed
	}
	return artifacts, cancelled, err
}

// tally builds the final result. Cards on pages that failed to write
// count as failed and are excluded from the success tallies.
func (c *Coordinator) tally(pages []layout.Page, resolved map[string]model.ResolvedImage, artifacts []model.PageArtifact, start time.Time) *model.Result {
	res := &model.Result{
		Outcome:   model.OutcomeCompleted,
		Artifacts: artifacts,
		Elapsed:   time.Since(start),
	}
	for i, page := range pages {
		if artifacts[i].Error != "" {
			res.Failed += len(page.Cells)
			continue
		}
		for _, cell := range page.Cells {
			if img, ok := resolved[cell.Card.ID]; ok && img.Origin != model.OriginPlaceholder {
				res.Succeeded++
			} else {
				res.Placeholders++
			}
		}
	}
	return res
}

// tallyCancelled reports partial progress: whatever resolved before
// the cancellation, plus any pages already written.
func (c *Coordinator) tallyCancelled(resolved map[string]model.ResolvedImage, artifacts []model.PageArtifact, start time.Time) *model.Result {
	res := &model.Result{
		Outcome: model.OutcomeCancelled,
		Elapsed: time.Since(start),
	}
	for _, a := range artifacts {
		if a.Path != "" {
			res.Artifacts = append(res.Artifacts, a)
		}
	}
	for _, img := range resolved {
		if img.Origin == model.OriginPlaceholder {
			res.Placeholders++
		} else {
			res.Succeeded++
		}
	}
	return res
}
