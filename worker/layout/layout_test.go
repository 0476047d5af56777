package layout

import (
	"fmt"
	"reflect"
	"testing"

	"cardposter/worker/model"
)

func makeCards(n int) []model.CardRef {
	cards := make([]model.CardRef, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, model.CardRef{
			ID:         fmt.Sprintf("card-%03d", i),
			Name:       fmt.Sprintf("Card %03d", i),
			SetName:    "Base Set",
			Generation: 1 + i/151,
			DexNumber:  i + 1,
			ImageURL:   fmt.Sprintf("https://example.com/%d.png", i),
		})
	}
	return cards
}

func baseConfig() model.ExportConfig {
	return model.ExportConfig{
		Title:       "Test Collection",
		CardsPerRow: 3,
		Quality:     model.TierLow,
		Format:      model.FormatPNG,
	}
}

func TestPlan_EveryCardExactlyOnce(t *testing.T) {
	cards := makeCards(57)
	pages := Plan(cards, baseConfig())

	seen := make(map[string]int)
	cells := make(map[string]bool)
	for _, page := range pages {
		for _, cell := range page.Cells {
			seen[cell.Card.ID]++
			pos := fmt.Sprintf("%d/%d/%d", page.Index, cell.Row, cell.Col)
			if cells[pos] {
				t.Errorf("Cell %s assigned twice", pos)
			}
			cells[pos] = true
		}
	}

	if len(seen) != len(cards) {
		t.Fatalf("Expected %d placed cards, got %d", len(cards), len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Card %s placed %d times", id, n)
		}
	}
}

func TestPlan_SevenCardsThreePerRow(t *testing.T) {
	cfg := baseConfig()
	pages := Plan(makeCards(7), cfg)

	if len(pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(pages))
	}
	page := pages[0]
	if page.Rows != 3 {
		t.Errorf("Expected a 3-row grid, got %d rows", page.Rows)
	}
	if len(page.Cells) != 7 {
		t.Errorf("Expected 7 cells, got %d", len(page.Cells))
	}

	// The partial last row stays left-aligned: one card at column 0.
	last := page.Cells[6]
	if last.Row != 2 || last.Col != 0 {
		t.Errorf("Expected 7th card at row 2 col 0, got row %d col %d", last.Row, last.Col)
	}

	prof := ProfileFor(cfg.Quality)
	if last.X != prof.Spacing {
		t.Errorf("Expected left-aligned partial row, got x=%d", last.X)
	}
}

func TestPlan_ZeroCards(t *testing.T) {
	if pages := Plan(nil, baseConfig()); pages != nil {
		t.Errorf("Expected empty plan for no cards, got %d pages", len(pages))
	}

	cfg := baseConfig()
	cfg.Generations = []int{9}
	if pages := Plan(makeCards(10), cfg); pages != nil {
		t.Errorf("Expected empty plan when the filter removes everything, got %d pages", len(pages))
	}
}

func TestPlan_PaginationBoundary(t *testing.T) {
	for _, tier := range []model.QualityTier{model.TierHigh, model.TierMedium, model.TierLow} {
		cfg := baseConfig()
		cfg.Quality = tier
		perPage := ProfileFor(tier).RowsPerPage(cfg.CardsPerRow) * cfg.CardsPerRow

		if got := len(Plan(makeCards(perPage), cfg)); got != 1 {
			t.Errorf("%s: %d cards should fill exactly one page, got %d pages", tier, perPage, got)
		}
		if got := len(Plan(makeCards(perPage+1), cfg)); got != 2 {
			t.Errorf("%s: %d cards should spill to a second page, got %d pages", tier, perPage+1, got)
		}
	}
}

func TestPlan_PageStaysWithinPixelBudget(t *testing.T) {
	for _, tier := range []model.QualityTier{model.TierHigh, model.TierMedium, model.TierLow} {
		cfg := baseConfig()
		cfg.Quality = tier
		prof := ProfileFor(tier)

		pages := Plan(makeCards(500), cfg)
		for _, page := range pages {
			if page.Width*page.Height > prof.PagePixelBudget {
				t.Errorf("%s: page %d is %dx%d = %d px, over budget %d",
					tier, page.Index, page.Width, page.Height,
					page.Width*page.Height, prof.PagePixelBudget)
			}
		}
	}
}

func TestPlan_Deterministic(t *testing.T) {
	cards := makeCards(120)
	cfg := baseConfig()
	cfg.Quality = model.TierMedium

	// Identical inputs must produce identical geometry, including
	// when the input order is shuffled.
	first := Plan(cards, cfg)
	second := Plan(cards, cfg)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("Two plans over identical input differ")
	}

	reversed := make([]model.CardRef, len(cards))
	for i, c := range cards {
		reversed[len(cards)-1-i] = c
	}
	third := Plan(reversed, cfg)
	if !reflect.DeepEqual(first, third) {
		t.Fatal("Plan depends on input order instead of the stable sort key")
	}
}

func TestFilter_GenerationAndOrder(t *testing.T) {
	cards := []model.CardRef{
		{ID: "c", Name: "Charizard", Generation: 1, DexNumber: 6},
		{ID: "m", Name: "Mew", Generation: 1, DexNumber: 151},
		{ID: "t", Name: "Togepi", Generation: 2, DexNumber: 175},
		{ID: "b", Name: "Bulbasaur", Generation: 1, DexNumber: 1},
	}

	cfg := baseConfig()
	cfg.Generations = []int{1}
	got := Filter(cards, cfg)

	want := []string{"b", "c", "m"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d cards after filtering, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}
