package renderer

import (
	"fmt"
	"image"
	"image/color"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

// EndCard is a QR code shown in the bottom right corner during the closing
// seconds of the video.
type EndCard struct {
	URL     string
	Seconds float64
	Size    int // px, 0 picks a fifth of the frame height
}

const endCardMargin = 0.04 // of the frame height

type endCardLayer struct {
	img       *image.RGBA
	at        image.Point
	fromFrame int
	fadeIn    int
}

func newEndCardLayer(ec EndCard, width, height, totalFrames, fps, fadeFrames int) (*endCardLayer, error) {
	size := ec.Size
	if size <= 0 {
		size = height / 5
	}
	qr, err := qrcode.New(ec.URL, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("end card qr: %w", err)
	}
	src := qr.Image(size)

	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	margin := int(float64(height) * endCardMargin)
	from := totalFrames - int(ec.Seconds*float64(fps)+0.5)
	return &endCardLayer{
		img:       img,
		at:        image.Pt(width-margin-b.Dx(), height-margin-b.Dy()),
		fromFrame: max(from, 0),
		fadeIn:    max(fadeFrames, 1),
	}, nil
}

// opacity ramps linearly from 0 over the fade-in frames.
func (l *endCardLayer) opacity(playHead int) float64 {
	rel := playHead - l.fromFrame
	if rel < 0 {
		return 0
	}
	if rel >= l.fadeIn {
		return 1
	}
	return float64(rel) / float64(l.fadeIn)
}

func (l *endCardLayer) draw(dst *image.RGBA, playHead int) {
	o := l.opacity(playHead)
	if o <= 0 {
		return
	}
	r := l.img.Bounds().Add(l.at)
	if o >= 1 {
		draw.Draw(dst, r, l.img, image.Point{}, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(o*255 + 0.5)})
	draw.DrawMask(dst, r, l.img, image.Point{}, mask, image.Point{}, draw.Over)
}
