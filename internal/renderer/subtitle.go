package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Caption card layout in output pixels.
const (
	captionFontSize   = 48
	captionPadX       = 32
	captionPadY       = 16
	captionRadius     = 12
	captionBorder     = 3
	captionMaxWidth   = 0.8  // of the frame width
	captionBottomEdge = 0.15 // distance of the card from the bottom, of the frame height
)

var (
	captionDark       = color.RGBA{A: 204} // black at 80 %, premultiplied
	captionGold       = color.RGBA{R: 0xFF, G: 0xD7, A: 0xFF}
	captionGoldBorder = color.RGBA{R: 0xFF, G: 0xA5, A: 0xFF}
)

// captionFaces holds the two weights used for cards. Faces are not safe for
// concurrent use, cards are therefore rendered up front on one goroutine.
type captionFaces struct {
	regular font.Face
	bold    font.Face
}

func newCaptionFaces() (*captionFaces, error) {
	regular, err := loadFace(gomedium.TTF)
	if err != nil {
		return nil, fmt.Errorf("load caption font: %w", err)
	}
	bold, err := loadFace(gobold.TTF)
	if err != nil {
		regular.Close()
		return nil, fmt.Errorf("load caption font: %w", err)
	}
	return &captionFaces{regular: regular, bold: bold}, nil
}

func loadFace(ttf []byte) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    captionFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (cf *captionFaces) Close() {
	cf.regular.Close()
	cf.bold.Close()
}

// renderCard draws a caption card at full opacity on a transparent buffer
// sized to the card.
func (cf *captionFaces) renderCard(text string, highlighted bool, frameWidth int) *image.RGBA {
	face, bg, fg, border := cf.regular, captionDark, color.Color(color.White), 0
	if highlighted {
		face, bg, fg, border = cf.bold, captionGold, color.Black, captionBorder
	}

	maxText := int(float64(frameWidth)*captionMaxWidth) - 2*(captionPadX+border)
	lines := wrapText(face, text, maxText)

	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	textWidth := 0
	for _, l := range lines {
		textWidth = max(textWidth, font.MeasureString(face, l).Ceil())
	}

	w := textWidth + 2*(captionPadX+border)
	h := len(lines)*lineHeight + 2*(captionPadY+border)
	card := image.NewRGBA(image.Rect(0, 0, w, h))

	if border > 0 {
		fillRoundedRect(card, card.Bounds(), captionRadius, captionGoldBorder)
		fillRoundedRect(card, card.Bounds().Inset(border), captionRadius-border, bg)
	} else {
		fillRoundedRect(card, card.Bounds(), captionRadius, bg)
	}

	d := font.Drawer{Dst: card, Src: image.NewUniform(fg), Face: face}
	top := border + captionPadY
	for i, l := range lines {
		lw := font.MeasureString(face, l)
		x := fixed.I(w)/2 - lw/2
		y := fixed.I(top+i*lineHeight) + metrics.Ascent
		d.Dot = fixed.Point26_6{X: x, Y: y}
		d.DrawString(l)
	}
	return card
}

// wrapText breaks text on spaces so no line is wider than maxWidth pixels.
// Words longer than maxWidth get a line of their own. Explicit newlines are
// kept.
func wrapText(face font.Face, text string, maxWidth int) []string {
	limit := fixed.I(max(maxWidth, 1))
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if font.MeasureString(face, candidate) <= limit {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = w
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// fillRoundedRect composites c over r with anti-aliased corners of radius rad.
func fillRoundedRect(dst *image.RGBA, r image.Rectangle, rad int, c color.RGBA) {
	radius := float64(max(rad, 0))
	radius = math.Min(radius, float64(min(r.Dx(), r.Dy()))/2)
	x0, y0 := float64(r.Min.X), float64(r.Min.Y)
	x1, y1 := float64(r.Max.X), float64(r.Max.Y)

	for y := r.Min.Y; y < r.Max.Y; y++ {
		py := float64(y) + 0.5
		for x := r.Min.X; x < r.Max.X; x++ {
			px := float64(x) + 0.5

			// distance outside the rounded corner, if the pixel is in one
			cx := math.Max(x0+radius-px, px-(x1-radius))
			cy := math.Max(y0+radius-py, py-(y1-radius))
			cover := 1.0
			if cx > 0 && cy > 0 {
				cover = math.Max(0, math.Min(1, radius-math.Hypot(cx, cy)+0.5))
			}
			if cover == 0 {
				continue
			}
			blendOver(dst, x, y, c, cover)
		}
	}
}

// blendOver composites premultiplied c scaled by cover onto dst at (x, y).
func blendOver(dst *image.RGBA, x, y int, c color.RGBA, cover float64) {
	i := dst.PixOffset(x, y)
	sa := float64(c.A) * cover
	inv := 1 - sa/255
	p := dst.Pix[i : i+4 : i+4]
	p[0] = uint8(float64(c.R)*cover + float64(p[0])*inv + 0.5)
	p[1] = uint8(float64(c.G)*cover + float64(p[1])*inv + 0.5)
	p[2] = uint8(float64(c.B)*cover + float64(p[2])*inv + 0.5)
	p[3] = uint8(sa + float64(p[3])*inv + 0.5)
}
