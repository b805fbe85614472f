// Package source loads the still images that scenes are built from.
package source

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var (
	ErrUnsupportedSource = errors.New("unsupported image source")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrNotLoaded         = errors.New("image was not preloaded")
)

// pageMarker separates a PDF path from its 1-based page number in a ref.
const pageMarker = "#page="

// Source is an ordered collection of pages: PDF pages or image files.
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	// Ref returns the imagePath under which the page is addressed in a
	// VideoConfig.
	Ref(index int) string
	Close() error
}

// Open picks a Source implementation for path: PDF documents through
// MuPDF, anything else as an image file or directory of images.
func Open(path string) (Source, error) {
	if isPDF(path) {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

// ParseRef splits an imagePath into a file path and a 1-based PDF page.
// Page is 0 for plain image files. A PDF without a page marker means page 1.
func ParseRef(ref string) (path string, page int, err error) {
	path = ref
	if i := strings.LastIndex(ref, pageMarker); i >= 0 {
		path = ref[:i]
		page, err = strconv.Atoi(ref[i+len(pageMarker):])
		if err != nil || page < 1 {
			return "", 0, fmt.Errorf("%w: %q", ErrPageOutOfRange, ref)
		}
		if !isPDF(path) {
			return "", 0, fmt.Errorf("%w: page marker on non-PDF %q", ErrUnsupportedSource, ref)
		}
		return path, page, nil
	}
	if isPDF(path) {
		return path, 1, nil
	}
	return path, 0, nil
}

// PageRef builds the imagePath of a PDF page.
func PageRef(path string, page int) string {
	return fmt.Sprintf("%s%s%d", path, pageMarker, page)
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

// GetPageDimensions returns the page size in points (1/72 inch).
func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	if index < 0 || index >= f.doc.NumPage() {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index+1, f.doc.NumPage())
	}
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage rasterises one page. Each call opens its own document handle,
// MuPDF contexts must not be shared between goroutines.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Ref(index int) string {
	return PageRef(f.path, index+1)
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
