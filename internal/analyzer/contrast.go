package analyzer

import (
	"image"

	"golang.org/x/image/draw"
)

// ContrastDetector finds blocks with a Sobel edge pass, grows the edges
// with a square dilation so neighbouring glyphs merge, and reports the
// bounding box of every connected region.
type ContrastDetector struct {
	MinBlockArea     int     // px²
	EdgeThreshold    float64 // gradient magnitude
	DilateRadius     int
	DilateIterations int
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:     500,
		EdgeThreshold:    30,
		DilateRadius:     2,
		DilateIterations: 2,
	}
}

func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	w, h := b.Dx(), b.Dy()

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Rect, img, b.Min, draw.Src)

	mask := edges(gray, d.EdgeThreshold)
	for range d.DilateIterations {
		mask = dilate(mask, w, h, d.DilateRadius)
	}

	var blocks []Block
	for _, r := range components(mask, w, h) {
		if r.Dx()*r.Dy() >= d.MinBlockArea {
			blocks = append(blocks, Block{Rect: r.Add(b.Min)})
		}
	}
	return blocks, nil
}

// edges marks pixels whose Sobel gradient exceeds threshold. The one pixel
// border is never marked.
func edges(g *image.Gray, threshold float64) []bool {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	mask := make([]bool, w*h)
	limit := threshold * threshold
	px := func(x, y int) int { return int(g.Pix[y*g.Stride+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) -
				px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			mask[y*w+x] = float64(gx*gx+gy*gy) > limit
		}
	}
	return mask
}

// dilate grows the mask by r pixels in every direction, as two separable
// passes of a (2r+1)² max filter.
func dilate(mask []bool, w, h, r int) []bool {
	rows := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		row := mask[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			for k := max(x-r, 0); k <= min(x+r, w-1); k++ {
				if row[k] {
					rows[y*w+x] = true
					break
				}
			}
		}
	}

	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := max(y-r, 0); k <= min(y+r, h-1); k++ {
				if rows[k*w+x] {
					out[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

// components returns the bounding box of every 4-connected region of the
// mask.
func components(mask []bool, w, h int) []image.Rectangle {
	seen := make([]bool, len(mask))
	var (
		rects []image.Rectangle
		stack []int
	)
	push := func(i int) {
		if mask[i] && !seen[i] {
			seen[i] = true
			stack = append(stack, i)
		}
	}

	for i, on := range mask {
		if !on || seen[i] {
			continue
		}
		r := image.Rect(i%w, i/w, i%w+1, i/w+1)
		push(i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%w, p/w
			r = r.Union(image.Rect(x, y, x+1, y+1))
			if x > 0 {
				push(p - 1)
			}
			if x < w-1 {
				push(p + 1)
			}
			if y > 0 {
				push(p - w)
			}
			if y < h-1 {
				push(p + w)
			}
		}
		rects = append(rects, r)
	}
	return rects
}
