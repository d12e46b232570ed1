package raster

import (
	"image"
	"image/color"
	"io"

	"github.com/nfnt/resize"
)

const (
	lumR, lumG, lumB = 55, 182, 18
)

func lightness(c color.Color) float64 {
	r, g, b, _ := c.RGBA()

	return float64(lumR*r+lumG*g+lumB*b) / float64(0xffff*(lumR+lumG+lumB))
}

// ImageSource turns a sequence of decoded images into raster pages,
// one page per image. Images wider than MaxWidth dots are scaled down
// to fit the print head; pixels darker than Threshold become set bits.
type ImageSource struct {
	// MaxWidth is the print head width in dots.
	MaxWidth int

	// Threshold between white and black dots, 0..1. Zero means 0.5.
	Threshold float64

	// Resolution in DPI for the generated page descriptors.
	// Zero means 180 (both axes).
	Resolution [2]uint

	// MediaType for the generated page descriptors.
	MediaType string

	images []image.Image
	rows   [][]byte
	next   int
}

// NewImageSource returns a Source delivering one page per image.
func NewImageSource(images []image.Image, maxWidth int) *ImageSource {
	return &ImageSource{
		MaxWidth: maxWidth,
		images:   images,
	}
}

func (s *ImageSource) threshold() float64 {
	if s.Threshold == 0 {
		return 0.5
	}
	return s.Threshold
}

func (s *ImageSource) resolution() [2]uint {
	if s.Resolution[0] == 0 || s.Resolution[1] == 0 {
		return [2]uint{180, 180}
	}
	return s.Resolution
}

// NextPage rasterises the next image and returns its page descriptor.
func (s *ImageSource) NextPage() (*Page, error) {
	if len(s.images) == 0 {
		return nil, io.EOF
	}
	img := s.images[0]
	s.images = s.images[1:]

	if s.MaxWidth > 0 && img.Bounds().Dx() > s.MaxWidth {
		img = resize.Resize(uint(s.MaxWidth), 0, img, resize.Lanczos3)
	}
	sz := img.Bounds().Size()

	// Lines are packed in bits, leftmost pixel in bit 7.
	bytesWidth := sz.X / 8
	if sz.X%8 != 0 {
		bytesWidth++
	}
	threshold := s.threshold()
	min := img.Bounds().Min
	s.rows = make([][]byte, sz.Y)
	for y := 0; y < sz.Y; y++ {
		row := make([]byte, bytesWidth)
		for x := 0; x < sz.X; x++ {
			if lightness(img.At(min.X+x, min.Y+y)) <= threshold {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
		s.rows[y] = row
	}
	s.next = 0

	res := s.resolution()
	page := &Page{
		HWResolution: res,
		PageSize: [2]float64{
			float64(sz.X) / float64(res[0]) * 72.0,
			float64(sz.Y) / float64(res[1]) * 72.0,
		},
		Width:        uint(sz.X),
		Height:       uint(sz.Y),
		BytesPerLine: uint(bytesWidth),
		MediaType:    s.MediaType,
	}
	// The image fills the page, so the imaging box touches all edges.
	page.ImagingBBox = [4]float64{0, 0, page.PageSize[0], page.PageSize[1]}
	return page, nil
}

// ReadRow copies the next pixel row of the current page into buf.
func (s *ImageSource) ReadRow(buf []byte) (int, error) {
	if s.next >= len(s.rows) {
		return 0, io.EOF
	}
	n := copy(buf, s.rows[s.next])
	s.next++
	return n, nil
}
