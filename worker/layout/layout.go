// Package layout computes deterministic poster geometry: which card
// lands in which cell of which page, and how large each page canvas
// is. It is pure; rendering happens in compose.
package layout

import (
	"sort"

	"cardposter/worker/model"
)

// Fixed band heights, independent of quality tier.
const (
	HeaderHeight = 80
	FooterHeight = 60
	// LabelStrip is always reserved below each card so that toggling
	// label fields never shifts card positions.
	LabelStrip = 60
)

// Profile carries the per-tier sizing constants.
type Profile struct {
	CardWidth  int
	CardHeight int
	Spacing    int

	TitleFontSize int
	LabelFontSize int

	// PagePixelBudget caps the page canvas area; rows beyond it spill
	// onto a new page. Higher tiers have larger cells, so fewer cards
	// fit per page.
	PagePixelBudget int

	// JPEGQuality applies when the output format is JPEG.
	JPEGQuality int
}

var profiles = map[model.QualityTier]Profile{
	model.TierHigh: {
		CardWidth: 245, CardHeight: 342, Spacing: 20,
		TitleFontSize: 24, LabelFontSize: 10,
		PagePixelBudget: 12_000_000,
		JPEGQuality:     95,
	},
	model.TierMedium: {
		CardWidth: 180, CardHeight: 252, Spacing: 15,
		TitleFontSize: 20, LabelFontSize: 9,
		PagePixelBudget: 8_000_000,
		JPEGQuality:     85,
	},
	model.TierLow: {
		CardWidth: 120, CardHeight: 168, Spacing: 10,
		TitleFontSize: 16, LabelFontSize: 8,
		PagePixelBudget: 4_000_000,
		JPEGQuality:     75,
	},
}

// ProfileFor returns the sizing profile for a tier. Unknown tiers fall
// back to high, matching config normalization.
func ProfileFor(tier model.QualityTier) Profile {
	if p, ok := profiles[tier]; ok {
		return p
	}
	return profiles[model.TierHigh]
}

// PageWidth is the canvas width for a row count: cards plus uniform
// gutters on both sides.
func (p Profile) PageWidth(cardsPerRow int) int {
	return cardsPerRow*p.CardWidth + (cardsPerRow+1)*p.Spacing
}

// CellHeight is the vertical pitch of one grid row.
func (p Profile) CellHeight() int {
	return p.CardHeight + LabelStrip + p.Spacing
}

// RowsPerPage is the maximum grid rows whose canvas stays within the
// tier's pixel budget. Always at least one.
func (p Profile) RowsPerPage(cardsPerRow int) int {
	maxHeight := p.PagePixelBudget / p.PageWidth(cardsPerRow)
	rows := (maxHeight - HeaderHeight - FooterHeight - p.Spacing) / p.CellHeight()
	if rows < 1 {
		rows = 1
	}
	return rows
}

// Cell is one planned card placement. X, Y are the top-left of the
// card area on the page canvas.
type Cell struct {
	Card model.CardRef
	Row  int
	Col  int
	X    int
	Y    int
}

// Page is one planned canvas.
type Page struct {
	Index  int
	Width  int
	Height int
	Rows   int
	Cells  []Cell
}

// Filter returns the cards passing the config's generation filter, in
// stable (generation, dex number, name, id) order. Repeated runs over
// identical input produce identical order.
func Filter(cards []model.CardRef, cfg model.ExportConfig) []model.CardRef {
	out := make([]model.CardRef, 0, len(cards))
	for _, c := range cards {
		if cfg.WantsGeneration(c.Generation) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		if a.DexNumber != b.DexNumber {
			return a.DexNumber < b.DexNumber
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// Plan assigns every filtered card to exactly one cell of exactly one
// page, filling row-major. An empty filtered list yields an empty
// plan. Partial final rows stay left-aligned; trailing cells are
// simply absent.
func Plan(cards []model.CardRef, cfg model.ExportConfig) []Page {
	filtered := Filter(cards, cfg)
	if len(filtered) == 0 {
		return nil
	}

	prof := ProfileFor(cfg.Quality)
	rowsPerPage := prof.RowsPerPage(cfg.CardsPerRow)
	perPage := rowsPerPage * cfg.CardsPerRow
	pageCount := (len(filtered) + perPage - 1) / perPage

	pages := make([]Page, 0, pageCount)
	for pi := 0; pi < pageCount; pi++ {
		start := pi * perPage
		end := start + perPage
		if end > len(filtered) {
			end = len(filtered)
		}
		chunk := filtered[start:end]
		rows := (len(chunk) + cfg.CardsPerRow - 1) / cfg.CardsPerRow

		page := Page{
			Index:  pi,
			Width:  prof.PageWidth(cfg.CardsPerRow),
			Height: HeaderHeight + rows*prof.CellHeight() + prof.Spacing + FooterHeight,
			Rows:   rows,
			Cells:  make([]Cell, 0, len(chunk)),
		}
		for i, card := range chunk {
			row := i / cfg.CardsPerRow
			col := i % cfg.CardsPerRow
			page.Cells = append(page.Cells, Cell{
				Card: card,
				Row:  row,
				Col:  col,
				X:    prof.Spacing + col*(prof.CardWidth+prof.Spacing),
				Y:    HeaderHeight + prof.Spacing + row*prof.CellHeight(),
			})
		}
		pages = append(pages, page)
	}
	return pages
}
