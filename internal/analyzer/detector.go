// Package analyzer finds regions of dense detail on a page image: lines of
// text, headings and figures.
package analyzer

import (
	"fmt"
	"image"
)

// Block is a detected region of detail.
type Block struct {
	Rect image.Rectangle
}

// Detector is the interface for page analysis strategies.
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// NewDetector creates a detector for the given variant.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

// Layout summarises the detail blocks of a page.
type Layout struct {
	Blocks   []Block
	Coverage float64 // fraction of the page inside blocks, capped at 1
}

// TextHeavy reports whether the page reads like a text slide: several
// separate blocks that together cover at least minCoverage of it. A photo
// usually yields one block spanning the frame and is not text heavy.
func (l Layout) TextHeavy(minBlocks int, minCoverage float64) bool {
	return len(l.Blocks) >= minBlocks && l.Coverage >= minCoverage
}

// Analyze runs det over img and measures its coverage.
func Analyze(det Detector, img image.Image) (Layout, error) {
	blocks, err := det.Detect(img)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Blocks: blocks, Coverage: Coverage(blocks, img.Bounds())}, nil
}

// Coverage is the summed block area over the area of bounds. Overlapping
// blocks count twice, so the result is capped at 1.
func Coverage(blocks []Block, bounds image.Rectangle) float64 {
	area := bounds.Dx() * bounds.Dy()
	if area == 0 {
		return 0
	}
	sum := 0
	for _, b := range blocks {
		r := b.Rect.Intersect(bounds)
		sum += r.Dx() * r.Dy()
	}
	return min(float64(sum)/float64(area), 1)
}
