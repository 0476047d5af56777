package model

import (
	"errors"
	"fmt"
	"time"
)

// CardRef identifies one card to export. It is supplied by the data
// layer and treated as read-only by the pipeline.
type CardRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SetName    string `json:"set_name"`
	Artist     string `json:"artist"`
	Generation int    `json:"generation"`
	DexNumber  int    `json:"dex_number"`
	ImageURL   string `json:"image_url"`
}

type QualityTier string

const (
	TierHigh   QualityTier = "high"
	TierMedium QualityTier = "medium"
	TierLow    QualityTier = "low"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
)

type LabelField string

const (
	LabelDexNumber LabelField = "dex-number"
	LabelSetName   LabelField = "set-name"
	LabelArtist    LabelField = "artist"
)

const (
	MinCardsPerRow = 2
	MaxCardsPerRow = 5

	DefaultTitle = "My Collection"
)

var (
	ErrInvalidCardsPerRow = errors.New("cards per row out of range")
	ErrInvalidQuality     = errors.New("unknown quality tier")
	ErrInvalidFormat      = errors.New("unknown output format")
	ErrInvalidLabel       = errors.New("unknown label field")
)

// ExportConfig is immutable for the duration of one job.
type ExportConfig struct {
	Title       string       `json:"title"`
	CardsPerRow int          `json:"cards_per_row"`
	Quality     QualityTier  `json:"quality"`
	Format      OutputFormat `json:"format"`
	Labels      []LabelField `json:"labels"`
	// Generations restricts the export to the listed generations.
	// Empty means all.
	Generations []int `json:"generations,omitempty"`
	CacheOptOut bool  `json:"cache_opt_out,omitempty"`
}

// Validate checks ranges and fills defaults for omitted fields. It is
// called once before planning begins; a validation error rejects the
// job with a specific reason.
func (c *ExportConfig) Validate() error {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.CardsPerRow < MinCardsPerRow || c.CardsPerRow > MaxCardsPerRow {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidCardsPerRow, c.CardsPerRow, MinCardsPerRow, MaxCardsPerRow)
	}
	switch c.Quality {
	case TierHigh, TierMedium, TierLow:
	case "":
		c.Quality = TierHigh
	default:
		return fmt.Errorf("%w: %q", ErrInvalidQuality, c.Quality)
	}
	switch c.Format {
	case FormatPNG, FormatJPEG:
	case "":
		c.Format = FormatPNG
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}
	for _, l := range c.Labels {
		switch l {
		case LabelDexNumber, LabelSetName, LabelArtist:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidLabel, l)
		}
	}
	return nil
}

// WantsGeneration reports whether cards of the given generation pass
// the configured filter.
func (c *ExportConfig) WantsGeneration(gen int) bool {
	if len(c.Generations) == 0 {
		return true
	}
	for _, g := range c.Generations {
		if g == gen {
			return true
		}
	}
	return false
}

func (c *ExportConfig) HasLabel(f LabelField) bool {
	for _, l := range c.Labels {
		if l == f {
			return true
		}
	}
	return false
}

// Origin records where a card's image bytes came from.
type Origin string

const (
	OriginCache       Origin = "cache"
	OriginNetwork     Origin = "network"
	OriginPlaceholder Origin = "placeholder"
)

// ResolvedImage is the downloader's per-card output. Data is nil when
// Origin is OriginPlaceholder; the compositor paints a synthetic tile
// in that case.
type ResolvedImage struct {
	Card   CardRef
	Data   []byte
	Origin Origin
}

// Outcome is the terminal disposition of an export job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeEmpty     Outcome = "empty"
	OutcomeCancelled Outcome = "cancelled"
)

// PageArtifact references one written page, or records why the page
// could not be written.
type PageArtifact struct {
	Page  int    `json:"page"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result summarizes one export job. Succeeded counts cards painted
// from real image bytes, Placeholders counts cards painted as
// placeholder tiles, and Failed counts cards on pages whose artifact
// could not be written.
type Result struct {
	Outcome      Outcome        `json:"outcome"`
	Artifacts    []PageArtifact `json:"artifacts"`
	Succeeded    int            `json:"succeeded"`
	Placeholders int            `json:"placeholders"`
	Failed       int            `json:"failed"`
	Elapsed      time.Duration  `json:"elapsed_ns"`
}

// Progress is emitted after each card resolution.
type Progress struct {
	Done         int `json:"done"`
	Total        int `json:"total"`
	Cache        int `json:"cache"`
	Network      int `json:"network"`
	Placeholders int `json:"placeholders"`
}
