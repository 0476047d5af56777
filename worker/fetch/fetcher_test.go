package fetch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cardposter/worker/cachestore"
	"cardposter/worker/model"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 7), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func newTestFetcher(t *testing.T) (*Fetcher, *cachestore.Store) {
	t.Helper()
	store, err := cachestore.Open(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to open cache store: %v", err)
	}
	f := NewFetcher(store, &http.Client{Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	f.Backoff = time.Millisecond
	return f, store
}

func TestFetcher_NetworkThenCache(t *testing.T) {
	payload := testPNG(t)
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write(payload)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	card := model.CardRef{ID: "base1-4", Name: "Charizard", ImageURL: srv.URL + "/card.png"}

	first := f.Resolve(context.Background(), card, false)
	if first.Origin != model.OriginNetwork {
		t.Fatalf("Expected network origin on cold cache, got %s", first.Origin)
	}
	if !bytes.Equal(first.Data, payload) {
		t.Error("Resolved bytes differ from the served payload")
	}

	second := f.Resolve(context.Background(), card, false)
	if second.Origin != model.OriginCache {
		t.Fatalf("Expected cache origin on warm cache, got %s", second.Origin)
	}
	if !bytes.Equal(second.Data, payload) {
		t.Error("Cached bytes differ from the served payload")
	}

	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("Expected exactly 1 network call, got %d", n)
	}
}

func TestFetcher_CacheOptOutRefetches(t *testing.T) {
	payload := testPNG(t)
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write(payload)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	card := model.CardRef{ID: "base1-4", ImageURL: srv.URL + "/card.png"}

	f.Resolve(context.Background(), card, false)
	res := f.Resolve(context.Background(), card, true)
	if res.Origin != model.OriginNetwork {
		t.Fatalf("Expected opt-out to hit the network, got %s", res.Origin)
	}
	if n := atomic.LoadInt64(&hits); n != 2 {
		t.Errorf("Expected 2 network calls with opt-out, got %d", n)
	}
}

func TestFetcher_RetriesTransientFailure(t *testing.T) {
	payload := testPNG(t)
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) <= 2 {
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	res := f.Resolve(context.Background(), model.CardRef{ID: "x", ImageURL: srv.URL}, false)
	if res.Origin != model.OriginNetwork {
		t.Fatalf("Expected success after retries, got %s", res.Origin)
	}
	if n := atomic.LoadInt64(&hits); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestFetcher_ExhaustedRetriesYieldPlaceholder(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	res := f.Resolve(context.Background(), model.CardRef{ID: "x", ImageURL: srv.URL}, false)
	if res.Origin != model.OriginPlaceholder {
		t.Fatalf("Expected placeholder after exhausted retries, got %s", res.Origin)
	}
	if res.Data != nil {
		t.Error("Placeholder resolution should carry no bytes")
	}
	if n := atomic.LoadInt64(&hits); n != int64(f.MaxRetries)+1 {
		t.Errorf("Expected %d attempts, got %d", f.MaxRetries+1, n)
	}
}

func TestFetcher_NotFoundIsPermanent(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	res := f.Resolve(context.Background(), model.CardRef{ID: "x", ImageURL: srv.URL}, false)
	if res.Origin != model.OriginPlaceholder {
		t.Fatalf("Expected placeholder for 404, got %s", res.Origin)
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("404 must not be retried, got %d attempts", n)
	}
}

func TestFetcher_UndecodablePayloadIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	f, store := newTestFetcher(t)
	card := model.CardRef{ID: "x", ImageURL: srv.URL}
	res := f.Resolve(context.Background(), card, false)
	if res.Origin != model.OriginPlaceholder {
		t.Fatalf("Expected placeholder for undecodable payload, got %s", res.Origin)
	}
	if _, ok := store.Lookup(cachestore.Key(card.ImageURL)); ok {
		t.Error("Invalid payload must not be cached")
	}
}

func TestFetcher_MissingURLYieldsPlaceholder(t *testing.T) {
	f, _ := newTestFetcher(t)
	res := f.Resolve(context.Background(), model.CardRef{ID: "x", Name: "No Art"}, false)
	if res.Origin != model.OriginPlaceholder {
		t.Fatalf("Expected placeholder for missing URL, got %s", res.Origin)
	}
}
