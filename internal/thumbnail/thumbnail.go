// Package thumbnail renders the first page of a resume PDF into a fixed-size
// PNG preview.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

const (
	Width  = 1000
	Height = 562
)

var ErrNoPages = errors.New("thumbnail: document has no pages")

// Renderer turns a document into PNG bytes.
type Renderer interface {
	Render(pdf []byte) ([]byte, error)
}

type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer { return &FitzRenderer{} }

func (FitzRenderer) Render(pdf []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, ErrNoPages
	}

	page, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return Encode(page)
}

// Encode crops/scales img to Width x Height, anchored at the top of the page
// where the resume header lives, and encodes it as PNG.
func Encode(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoPages
	}

	out := imaging.Fill(img, Width, Height, imaging.Top, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
