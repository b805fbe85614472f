package renderer

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/transition"
)

// ImageStore serves decoded scene images by their imagePath.
type ImageStore interface {
	Get(ref string) (*image.RGBA, error)
}

// Rasterizer draws frames resolved by a timeline.Compositor. After
// construction it only reads shared state, so one Rasterizer serves all
// render workers.
type Rasterizer struct {
	width, height int
	images        ImageStore
	cards         map[int]*image.RGBA // scene index -> caption card
	endCard       *endCardLayer
	interp        draw.Interpolator
	pool          *system.ImagePool
}

type Option func(*rasterOptions)

type rasterOptions struct {
	endCard *EndCard
	interp  draw.Interpolator
	pool    *system.ImagePool
}

// WithEndCard overlays a QR code during the last seconds of the video.
func WithEndCard(ec EndCard) Option {
	return func(o *rasterOptions) {
		if ec.URL != "" && ec.Seconds > 0 {
			o.endCard = &ec
		}
	}
}

// WithInterpolator sets the resampling kernel for scene images.
func WithInterpolator(i draw.Interpolator) Option {
	return func(o *rasterOptions) { o.interp = i }
}

// WithPool sets the pool scratch buffers come from.
func WithPool(p *system.ImagePool) Option {
	return func(o *rasterOptions) { o.pool = p }
}

// NewRasterizer prepares caption cards and the end card for every scene of
// comp.
func NewRasterizer(comp *timeline.Compositor, images ImageStore, opts ...Option) (*Rasterizer, error) {
	o := rasterOptions{interp: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pool == nil {
		o.pool = system.NewImagePool()
	}

	w, h := comp.Size()
	r := &Rasterizer{
		width:  w,
		height: h,
		images: images,
		cards:  make(map[int]*image.RGBA),
		interp: o.interp,
		pool:   o.pool,
	}

	var faces *captionFaces
	for i, s := range comp.Scenes() {
		if s.Subtitle == nil {
			continue
		}
		if faces == nil {
			var err error
			if faces, err = newCaptionFaces(); err != nil {
				return nil, err
			}
			defer faces.Close()
		}
		r.cards[i] = faces.renderCard(s.Subtitle.Text, s.Subtitle.Highlighted, w)
	}

	if o.endCard != nil {
		l, err := newEndCardLayer(*o.endCard, w, h, comp.TotalFrames(), comp.FPS(), comp.TransitionFrames())
		if err != nil {
			return nil, err
		}
		r.endCard = l
	}
	return r, nil
}

// Bounds is the rectangle of the output buffers.
func (r *Rasterizer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// Render draws f into dst, which must have the bounds returned by Bounds.
// Previous contents of dst are overwritten.
func (r *Rasterizer) Render(f timeline.Frame, dst *image.RGBA) error {
	if dst.Rect != r.Bounds() {
		return fmt.Errorf("render buffer is %v, want %v", dst.Rect, r.Bounds())
	}
	fillBlack(dst)

	if f.Base != nil {
		if err := r.drawBase(dst, f); err != nil {
			return err
		}
	}
	if f.Subtitle != nil && f.Subtitle.Visible {
		r.drawCaption(dst, f.SceneIndex, f.Subtitle)
	}
	if r.endCard != nil {
		r.endCard.draw(dst, f.PlayHead)
	}
	return nil
}

// drawBase composes the Ken Burns transform scale(s) translate(t) with the
// transition wrapper translateX(a) scale(b), both about the frame centre, on
// top of an object-fit cover placement of the image.
func (r *Rasterizer) drawBase(dst *image.RGBA, f timeline.Frame) error {
	img, err := r.images.Get(f.Base.ImagePath)
	if err != nil {
		return fmt.Errorf("scene %d: %w", f.SceneIndex, err)
	}
	ib := img.Bounds()
	iw, ih := float64(ib.Dx()), float64(ib.Dy())
	if iw == 0 || ih == 0 {
		return nil
	}
	W, H := float64(r.width), float64(r.height)

	cover := math.Max(W/iw, H/ih)
	kb := f.Base.Transform
	tx, ty := kb.TranslateXPercent/100*W, kb.TranslateYPercent/100*H

	overlay := transition.None
	if f.Transition != nil {
		overlay = f.Transition.Overlay
	}
	ax := overlay.TranslateXPercent / 100 * W
	b := overlay.Scale

	k := b * kb.Scale * cover
	offX := W/2 + ax + b*kb.Scale*tx - k*(float64(ib.Min.X)+iw/2)
	offY := H/2 + b*kb.Scale*ty - k*(float64(ib.Min.Y)+ih/2)

	opacity := overlay.Opacity * f.Base.Opacity
	if opacity <= 0 {
		return nil
	}
	r.interp.Transform(dst, f64.Aff3{k, 0, offX, 0, k, offY}, img, ib, draw.Over, nil)
	if opacity < 1 {
		dim(dst, opacity)
	}
	return nil
}

// drawCaption places the card with its bottom edge 15% above the frame
// bottom, then applies translateY and scale about the card centre.
func (r *Rasterizer) drawCaption(dst *image.RGBA, scene int, sub *timeline.SubtitleLayer) {
	card := r.cards[scene]
	if card == nil || sub.Opacity <= 0 || sub.Scale <= 0 {
		return
	}
	cw, ch := float64(card.Rect.Dx()), float64(card.Rect.Dy())
	cx := float64(r.width) / 2
	cy := float64(r.height)*(1-captionBottomEdge) - ch/2 + sub.TranslateY

	s := sub.Scale
	m := f64.Aff3{s, 0, cx - s*cw/2, 0, s, cy - s*ch/2}

	src := card
	if sub.Opacity < 1 {
		faded := r.pool.Get(card.Rect)
		defer r.pool.Put(faded)
		scaleAlpha(faded, card, sub.Opacity)
		src = faded
	}
	draw.BiLinear.Transform(dst, m, src, src.Rect, draw.Over, nil)
}

func fillBlack(img *image.RGBA) {
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0xFF
	}
}

// dim fades the opaque frame towards black.
func dim(img *image.RGBA, opacity float64) {
	a := uint32(opacity*256 + 0.5)
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = uint8(uint32(pix[i]) * a >> 8)
		pix[i+1] = uint8(uint32(pix[i+1]) * a >> 8)
		pix[i+2] = uint8(uint32(pix[i+2]) * a >> 8)
	}
}

// scaleAlpha writes src multiplied by opacity into dst. Both share bounds.
func scaleAlpha(dst, src *image.RGBA, opacity float64) {
	a := uint32(opacity*256 + 0.5)
	for i, v := range src.Pix {
		dst.Pix[i] = uint8(uint32(v) * a >> 8)
	}
}
