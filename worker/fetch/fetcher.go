// Package fetch resolves card images: cache first, then the network
// with bounded retries, degrading to a placeholder flag on permanent
// failure so the export always completes.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"cardposter/worker/cachestore"
	"cardposter/worker/model"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond

	// maxImageBytes guards against a misbehaving source streaming an
	// unbounded body into memory.
	maxImageBytes = 32 << 20
)

// Fetcher resolves one card at a time and is safe to call concurrently
// for distinct cards. Retries are independent per card.
type Fetcher struct {
	store  *cachestore.Store
	client *http.Client
	logger *zap.Logger

	// MaxRetries and Backoff govern transient-failure handling and can
	// be tightened in tests.
	MaxRetries int
	Backoff    time.Duration
}

func NewFetcher(store *cachestore.Store, client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		store:      store,
		client:     client,
		logger:     logger,
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
	}
}

// Resolve produces the image for one card. It never returns an error:
// permanent failures come back as a placeholder ResolvedImage, which
// the caller tallies.
func (f *Fetcher) Resolve(ctx context.Context, card model.CardRef, cacheOptOut bool) model.ResolvedImage {
	if card.ImageURL == "" {
		return model.ResolvedImage{Card: card, Origin: model.OriginPlaceholder}
	}

	key := cachestore.Key(card.ImageURL)

	if !cacheOptOut {
		if _, ok := f.store.Lookup(key); ok {
			data, err := f.store.Read(key)
			if err == nil {
				return model.ResolvedImage{Card: card, Data: data, Origin: model.OriginCache}
			}
			f.logger.Warn("Cache entry unreadable, refetching",
				zap.String("card_id", card.ID),
				zap.Error(err),
			)
		}
	}

	data, err := f.download(ctx, card)
	if err != nil {
		f.logger.Warn("Image unavailable, using placeholder",
			zap.String("card_id", card.ID),
			zap.String("url", card.ImageURL),
			zap.Error(err),
		)
		return model.ResolvedImage{Card: card, Origin: model.OriginPlaceholder}
	}

	if _, err := f.store.Put(key, data, ""); err != nil {
		// Not cached, but the job still gets the bytes.
		f.logger.Warn("Failed to cache downloaded image",
			zap.String("card_id", card.ID),
			zap.Error(err),
		)
	}

	return model.ResolvedImage{Card: card, Data: data, Origin: model.OriginNetwork}
}

// download fetches and validates the payload, retrying transient
// failures with exponential backoff and jitter.
func (f *Fetcher) download(ctx context.Context, card model.CardRef) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, retryable, err := f.fetchOnce(ctx, card.ImageURL)
		if err == nil {
			if _, derr := imaging.Decode(bytes.NewReader(data)); derr != nil {
				return nil, fmt.Errorf("undecodable payload: %w", derr)
			}
			return data, nil
		}
		lastErr = err
		if !retryable || attempt >= f.MaxRetries || ctx.Err() != nil {
			return nil, lastErr
		}

		delay := f.Backoff << attempt
		delay += time.Duration(rand.Int63n(int64(f.Backoff)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (data []byte, retryable bool, err error) {
	timeout := f.client.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection resets are transient unless the
		// caller has cancelled.
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, false, err
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("server error: %s", resp.Status)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("fetch rejected: %s", resp.Status)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, true, err
	}
	return data, false, nil
}
