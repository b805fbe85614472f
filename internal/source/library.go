package source

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	minDPI = 72
	maxDPI = 600

	// camera moves zoom up to 1.3x, keep that much detail in memory
	defaultOversample = 1.3
)

// Library decodes every image a timeline references exactly once and then
// serves the decoded RGBA buffers read-only to the render workers.
type Library struct {
	width, height int
	oversample    float64
	prepare       func(*image.RGBA)

	mu     sync.RWMutex
	images map[string]*image.RGBA
}

type LibraryOption func(*Library)

// WithPrepare registers a pass that runs on every image once, right after it
// is decoded. Colour grading lives here.
func WithPrepare(fn func(*image.RGBA)) LibraryOption {
	return func(l *Library) { l.prepare = fn }
}

// WithOversample sets how much larger than the cover size images are kept.
func WithOversample(f float64) LibraryOption {
	return func(l *Library) {
		if f >= 1 {
			l.oversample = f
		}
	}
}

// NewLibrary creates an empty library for a width x height output.
func NewLibrary(width, height int, opts ...LibraryOption) *Library {
	l := &Library{
		width:      width,
		height:     height,
		oversample: defaultOversample,
		images:     make(map[string]*image.RGBA),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Preload decodes all refs on up to workers goroutines. Refs already in the
// library are skipped. The first error cancels the remaining loads.
func (l *Library) Preload(ctx context.Context, refs []string, workers int) error {
	pending := l.missing(refs)
	if len(pending) == 0 {
		return nil
	}

	// one base document per PDF, pages render through their own handles
	docs := make(map[string]*FitzPDFSource)
	defer func() {
		for _, d := range docs {
			d.Close()
		}
	}()
	for _, ref := range pending {
		path, page, err := ParseRef(ref)
		if err != nil {
			return err
		}
		if page == 0 || docs[path] != nil {
			continue
		}
		doc, err := NewFitzPDFSource(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		docs[path] = doc
	}

	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ref := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := l.load(ref, docs)
			if err != nil {
				return fmt.Errorf("load %s: %w", ref, err)
			}

			l.mu.Lock()
			l.images[ref] = img
			l.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// Get returns the decoded image for ref.
func (l *Library) Get(ref string) (*image.RGBA, error) {
	l.mu.RLock()
	img, ok := l.images[ref]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, ref)
	}
	return img, nil
}

// Len returns the number of decoded images.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.images)
}

func (l *Library) missing(refs []string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool, len(refs))
	var out []string
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		if _, ok := l.images[ref]; !ok {
			out = append(out, ref)
		}
	}
	return out
}

func (l *Library) load(ref string, docs map[string]*FitzPDFSource) (*image.RGBA, error) {
	path, page, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	var src image.Image
	if page == 0 {
		s, err := NewImageSource(path)
		if err != nil {
			return nil, err
		}
		if src, err = s.RenderPage(0, 0); err != nil {
			return nil, err
		}
	} else {
		doc := docs[path]
		if page > doc.PageCount() {
			return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, doc.PageCount())
		}
		pw, ph, err := doc.GetPageDimensions(page - 1)
		if err != nil {
			return nil, err
		}
		if src, err = doc.RenderPage(page-1, l.pageDPI(pw, ph)); err != nil {
			return nil, err
		}
	}

	img := l.fit(src)
	if l.prepare != nil {
		l.prepare(img)
	}
	return img, nil
}

// pageDPI picks a resolution at which a page of pw x ph points still covers
// the output after the largest camera zoom.
func (l *Library) pageDPI(pw, ph float64) int {
	if pw <= 0 || ph <= 0 {
		return minDPI
	}
	cover := math.Max(float64(l.width)/pw, float64(l.height)/ph)
	dpi := int(math.Ceil(72 * cover * l.oversample))
	return max(minDPI, min(dpi, maxDPI))
}

// fit converts src to a zero-origin RGBA buffer, shrinking images that are
// far larger than the output needs.
func (l *Library) fit(src image.Image) *image.RGBA {
	b := src.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())

	scale := 1.0
	if sw > 0 && sh > 0 {
		need := math.Max(float64(l.width)/sw, float64(l.height)/sh) * l.oversample
		if need < 0.5 {
			scale = need
		}
	}

	if scale == 1 {
		if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == b.Dx()*4 {
			return rgba
		}
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	dst := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(sw*scale)), int(math.Ceil(sh*scale))))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
