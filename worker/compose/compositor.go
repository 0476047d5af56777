// Package compose paints planned pages: card images (or placeholder
// tiles), the configured label fields, a title header, and a dated
// footer, then encodes the canvas to disk.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"cardposter/worker/layout"
	"cardposter/worker/model"
)

const attribution = "CardPoster"

// Poster palette.
var (
	colBackground  = color.NRGBA{44, 62, 80, 255}
	colBand        = color.NRGBA{52, 73, 94, 255}
	colText        = color.NRGBA{255, 255, 255, 255}
	colFooterText  = color.NRGBA{189, 195, 199, 255}
	colPlaceholder = color.NRGBA{52, 73, 94, 255}
	colPlaceText   = color.NRGBA{127, 140, 141, 255}
)

type Compositor struct {
	logger *zap.Logger
}

func NewCompositor(logger *zap.Logger) *Compositor {
	return &Compositor{logger: logger}
}

// Render paints one planned page and writes it to destPath. The
// resolved images map is keyed by card ID; cells whose image carries
// the placeholder origin get a synthetic tile with the card's name.
// exportedAt is the job start time so every page of a job carries the
// same footer date.
func (c *Compositor) Render(page layout.Page, images map[string]model.ResolvedImage, cfg model.ExportConfig, totalPages int, exportedAt time.Time, destPath string) error {
	prof := layout.ProfileFor(cfg.Quality)
	canvas := imaging.New(page.Width, page.Height, colBackground)

	c.drawHeader(canvas, page, cfg, prof, totalPages)

	for _, cell := range page.Cells {
		resolved, ok := images[cell.Card.ID]
		if !ok || resolved.Origin == model.OriginPlaceholder {
			c.drawPlaceholder(canvas, cell, prof)
		} else if err := c.drawCard(canvas, cell, resolved.Data, prof); err != nil {
			c.logger.Warn("Cached bytes failed to decode at render time",
				zap.String("card_id", cell.Card.ID),
				zap.Error(err),
			)
			c.drawPlaceholder(canvas, cell, prof)
		}
		c.drawLabels(canvas, cell, cfg, prof)
	}

	c.drawFooter(canvas, page, exportedAt)

	if err := c.save(canvas, cfg, prof, destPath); err != nil {
		return fmt.Errorf("write page %d: %w", page.Index, err)
	}

	c.logger.Info("Page rendered",
		zap.Int("page", page.Index),
		zap.Int("cards", len(page.Cells)),
		zap.String("path", destPath),
	)
	return nil
}

func (c *Compositor) drawCard(canvas *image.NRGBA, cell layout.Cell, data []byte, prof layout.Profile) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	scaled := imaging.Fit(img, prof.CardWidth, prof.CardHeight, imaging.Lanczos)

	// Center within the cell; Fit preserves aspect ratio so one axis
	// may come up short.
	offX := cell.X + (prof.CardWidth-scaled.Bounds().Dx())/2
	offY := cell.Y + (prof.CardHeight-scaled.Bounds().Dy())/2
	draw.Draw(canvas, scaled.Bounds().Add(image.Pt(offX, offY)), scaled, scaled.Bounds().Min, draw.Over)
	return nil
}

func (c *Compositor) drawPlaceholder(canvas *image.NRGBA, cell layout.Cell, prof layout.Profile) {
	tile := image.Rect(cell.X, cell.Y, cell.X+prof.CardWidth, cell.Y+prof.CardHeight)
	draw.Draw(canvas, tile, image.NewUniform(colPlaceholder), image.Point{}, draw.Src)

	cx := cell.X + prof.CardWidth/2
	cy := cell.Y + prof.CardHeight/2
	drawTextCentered(canvas, "No Image Available", cx, cy-8, colPlaceText)
	drawTextCentered(canvas, cell.Card.Name, cx, cy+8, colPlaceText)
}

func (c *Compositor) drawLabels(canvas *image.NRGBA, cell layout.Cell, cfg model.ExportConfig, prof layout.Profile) {
	lines := make([]string, 0, 3)
	if cfg.HasLabel(model.LabelDexNumber) {
		lines = append(lines, fmt.Sprintf("#%03d %s", cell.Card.DexNumber, cell.Card.Name))
	}
	if cfg.HasLabel(model.LabelSetName) && cell.Card.SetName != "" {
		lines = append(lines, cell.Card.SetName)
	}
	if cfg.HasLabel(model.LabelArtist) && cell.Card.Artist != "" {
		lines = append(lines, "Illus. "+cell.Card.Artist)
	}

	cx := cell.X + prof.CardWidth/2
	y := cell.Y + prof.CardHeight + 16
	for _, line := range lines {
		drawTextCentered(canvas, line, cx, y, colText)
		y += 16
	}
}

func (c *Compositor) drawHeader(canvas *image.NRGBA, page layout.Page, cfg model.ExportConfig, prof layout.Profile, totalPages int) {
	draw.Draw(canvas, image.Rect(0, 0, page.Width, layout.HeaderHeight), image.NewUniform(colBand), image.Point{}, draw.Src)

	title := cfg.Title
	if totalPages > 1 {
		title = fmt.Sprintf("%s (page %d/%d)", title, page.Index+1, totalPages)
	}
	drawTextScaled(canvas, title, page.Width/2, layout.HeaderHeight/2, prof.TitleFontSize, colText)
}

func (c *Compositor) drawFooter(canvas *image.NRGBA, page layout.Page, exportedAt time.Time) {
	top := page.Height - layout.FooterHeight
	draw.Draw(canvas, image.Rect(0, top, page.Width, page.Height), image.NewUniform(colBand), image.Point{}, draw.Src)

	text := fmt.Sprintf("Exported on %s · %s", exportedAt.Format("January 2, 2006"), attribution)
	drawTextCentered(canvas, text, page.Width/2, top+layout.FooterHeight/2+4, colFooterText)
}

func (c *Compositor) save(canvas *image.NRGBA, cfg model.ExportConfig, prof layout.Profile, destPath string) error {
	switch cfg.Format {
	case model.FormatJPEG:
		return imaging.Save(canvas, destPath, imaging.JPEGQuality(prof.JPEGQuality))
	default:
		level := png.BestCompression
		if cfg.Quality == model.TierHigh {
			level = png.DefaultCompression
		}
		return imaging.Save(canvas, destPath, imaging.PNGCompressionLevel(level))
	}
}

// ArtifactName builds the deterministic output filename for a page:
// the slugged title, a page suffix when the plan spans multiple pages,
// and the format extension.
func ArtifactName(title string, page, totalPages int, format model.OutputFormat) string {
	ext := "png"
	if format == model.FormatJPEG {
		ext = "jpg"
	}
	if totalPages > 1 {
		return fmt.Sprintf("%s_p%02d.%s", Slug(title), page+1, ext)
	}
	return fmt.Sprintf("%s.%s", Slug(title), ext)
}

// Slug reduces a title to a safe lowercase filename stem.
func Slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "collection"
	}
	return b.String()
}

var face = basicfont.Face7x13

func drawTextCentered(dst draw.Image, s string, cx, baselineY int, col color.Color) {
	w := font.MeasureString(face, s).Ceil()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(cx-w/2, baselineY),
	}
	d.DrawString(s)
}

// drawTextScaled rasterizes with the fixed bitmap face, then resizes
// to approximate the requested pixel size. Good enough for a poster
// title without shipping a TTF.
func drawTextScaled(dst *image.NRGBA, s string, cx, cy, sizePx int, col color.Color) {
	if s == "" {
		return
	}
	w := font.MeasureString(face, s).Ceil()
	if w == 0 {
		return
	}
	tmp := image.NewNRGBA(image.Rect(0, 0, w, face.Height))
	d := font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	scaledW := w * sizePx / face.Height
	scaled := imaging.Resize(tmp, scaledW, sizePx, imaging.NearestNeighbor)
	pos := image.Pt(cx-scaledW/2, cy-sizePx/2)
	draw.Draw(dst, scaled.Bounds().Add(pos), scaled, scaled.Bounds().Min, draw.Over)
}
