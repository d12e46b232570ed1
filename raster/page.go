package raster

// CutMode says when the printer should cut the media.
type CutMode int

const (
	CutNone CutMode = iota
	CutPage         // cut after every page
	CutJob          // cut after the last page only
)

// AdvanceMode says when the printer should feed the AdvanceDistance.
type AdvanceMode int

const (
	AdvanceNone AdvanceMode = iota
	AdvancePage
	AdvanceJob
)

// Page carries the physical attributes of one raster page. Linear
// measures are PostScript points unless noted otherwise.
type Page struct {
	// HWResolution is the horizontal and vertical resolution in DPI.
	HWResolution [2]uint

	// PageSize is the page width and height.
	PageSize [2]float64

	// ImagingBBox is the imaging area as left, bottom, right, top.
	// Blank space between the box and the page edges becomes empty
	// raster lines.
	ImagingBBox [4]float64

	// Width and Height are the pixel dimensions of the raster data.
	Width, Height uint

	// BytesPerLine is the length in bytes of one source pixel row.
	BytesPerLine uint

	NegativePrint bool
	MirrorPrint   bool

	CutMedia        CutMode
	AdvanceMedia    AdvanceMode
	AdvanceDistance uint

	// MediaType distinguishes roll-fed tape ("Tape", "Roll", empty)
	// from die-cut labels ("Labels").
	MediaType string
}

// Source supplies raster pages and their pixel rows on demand.
//
// NextPage returns the next page descriptor, or io.EOF after the last
// page. ReadRow fills buf with the next pixel row of the current page
// and returns the number of bytes read; io.EOF before Height rows have
// been delivered is not an error, the page is simply short.
type Source interface {
	NextPage() (*Page, error)
	ReadRow(buf []byte) (int, error)
}
