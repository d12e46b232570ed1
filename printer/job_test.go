package printer

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/philpem/printer-driver-ptouch/raster"
)

// testSource serves canned pages from memory.
type testSource struct {
	pages []testPage
	next  int
	row   int
}

type testPage struct {
	page *raster.Page
	rows [][]byte
}

func (s *testSource) NextPage() (*raster.Page, error) {
	if s.next >= len(s.pages) {
		return nil, io.EOF
	}
	p := s.pages[s.next]
	s.next++
	s.row = 0
	return p.page, nil
}

func (s *testSource) ReadRow(buf []byte) (int, error) {
	cur := s.pages[s.next-1]
	if s.row >= len(cur.rows) {
		return 0, io.EOF
	}
	n := copy(buf, cur.rows[s.row])
	s.row++
	return n, nil
}

// makePage builds a page whose imaging box fills the page exactly, so
// no leading or trailing blank lines are implied.
func makePage(width, height int, res uint) *raster.Page {
	w := float64(width) / float64(res) * 72.0
	h := float64(height) / float64(res) * 72.0
	return &raster.Page{
		HWResolution: [2]uint{res, res},
		PageSize:     [2]float64{w, h},
		ImagingBBox:  [4]float64{0, 0, w, h},
		Width:        uint(width),
		Height:       uint(height),
		BytesPerLine: uint((width + 7) / 8),
	}
}

func blankRows(n, bytesPerLine int) [][]byte {
	rows := make([][]byte, n)
	for i := range rows {
		rows[i] = make([]byte, bytesPerLine)
	}
	return rows
}

func printJob(t *testing.T, options JobOptions, pages ...testPage) []byte {
	t.Helper()
	var out bytes.Buffer
	job := NewJob(&out, options)
	if err := job.Print(context.Background(), &testSource{pages: pages}); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestPrintBlankPage(t *testing.T) {
	out := printJob(t, testOptions(),
		testPage{makePage(16, 2, 180), blankRows(2, 2)})

	want := []byte{
		0x1b, '@', // initialize
		0x1b, 'i', 'M', 0x00, // no cut, no mirror, no feed
		0x1b, 'i', 'K', 0x00,
		0x1b, 'i', 'd', 0x00, 0x00, // no margin
		'M', 0x02, // RLE compression
		'Z', 'Z', // two blank lines
		0x1a, // eject
	}
	if !bytes.Equal(out, want) {
		t.Errorf("out = % x\nwant  % x", out, want)
	}
}

func TestPrintSinglePixelRow(t *testing.T) {
	row := make([]byte, 2)
	row[0] = 0x80 // leftmost pixel
	out := printJob(t, testOptions(),
		testPage{makePage(16, 1, 180), [][]byte{row}})

	idx := bytes.Index(out, []byte{'M', 0x02})
	if idx < 0 {
		t.Fatal("no compression select in output")
	}
	if out[len(out)-1] != 0x1a {
		t.Fatal("output does not end with eject")
	}
	lines := decodeRecords(t, out[idx+2:len(out)-1], false, 90)
	if len(lines) != 1 {
		t.Fatalf("decoded %d lines, want 1", len(lines))
	}
	// Device lines run right to left: the reversed, bit-mirrored
	// source puts the leftmost pixel in bit 0 of the second byte.
	want := make([]byte, 90)
	want[1] = 0x01
	if !bytes.Equal(lines[0], want) {
		t.Errorf("line = % x, want % x", lines[0][:4], want[:4])
	}
}

func TestPrintPageSetupDiff(t *testing.T) {
	p1 := makePage(16, 2, 180)
	p2 := makePage(16, 2, 180)
	p2.AdvanceMedia = raster.AdvancePage
	p2.AdvanceDistance = 5

	out := printJob(t, testOptions(),
		testPage{p1, blankRows(2, 2)},
		testPage{p2, blankRows(2, 2)})

	if n := bytes.Count(out, []byte{0x1b, '@'}); n != 1 {
		t.Errorf("initialize emitted %d times, want 1", n)
	}
	// Only the feed amount changed, so the second page re-emits
	// exactly the various-mode command.
	if n := bytes.Count(out, []byte{0x1b, 'i', 'M'}); n != 2 {
		t.Errorf("various mode emitted %d times, want 2", n)
	}
	if !bytes.Contains(out, []byte{0x1b, 'i', 'M', 0x05}) {
		t.Error("second various mode does not carry the feed amount")
	}
	if n := bytes.Count(out, []byte{0x1b, 'i', 'K'}); n != 1 {
		t.Errorf("advanced mode emitted %d times, want 1", n)
	}
	if n := bytes.Count(out, []byte{0x1b, 'i', 'd'}); n != 1 {
		t.Errorf("margin emitted %d times, want 1", n)
	}
	if n := bytes.Count(out, []byte{0x0c}); n != 1 {
		t.Errorf("%d form feeds, want 1", n)
	}
	if n := bytes.Count(out, []byte{0x1a}); n != 1 || out[len(out)-1] != 0x1a {
		t.Errorf("eject wrong: %d occurrences", n)
	}
}

func TestPrintUnchangedPageOmitsSetup(t *testing.T) {
	p := makePage(16, 2, 180)
	out := printJob(t, testOptions(),
		testPage{p, blankRows(2, 2)},
		testPage{p, blankRows(2, 2)})

	if n := bytes.Count(out, []byte{0x1b, 'i', 'M'}); n != 1 {
		t.Errorf("various mode emitted %d times, want 1", n)
	}
	if n := bytes.Count(out, []byte{0x1b, 'i', 'K'}); n != 1 {
		t.Errorf("advanced mode emitted %d times, want 1", n)
	}
}

func TestPrintConcatPages(t *testing.T) {
	options := testOptions()
	options.ConcatPages = true
	out := printJob(t, options,
		testPage{makePage(16, 2, 180), blankRows(2, 2)},
		testPage{makePage(16, 2, 180), blankRows(2, 2)})

	if bytes.Contains(out, []byte{0x0c}) {
		t.Error("form feed emitted between concatenated pages")
	}
	// The trailing blank run is replaced by the imaging box bottom
	// distance, which is zero here.
	if bytes.Contains(out, []byte{'Z'}) {
		t.Error("blank lines emitted for all-blank concatenated job")
	}
	if out[len(out)-1] != 0x1a {
		t.Error("output does not end with eject")
	}
}

func TestPrintLabelPreamble(t *testing.T) {
	options := testOptions()
	options.PTSeries = true
	options.LabelPreamble = true
	out := printJob(t, options,
		testPage{makePage(16, 2, 180), blankRows(2, 2)})

	// Width 16 px at 180 dpi is 6.4 pt, about 2 mm. Two lines follow.
	preamble := []byte{0x1b, 'i', 'z', piWidth, 0x00, 2, 0, 2, 0, 0, 0, 0x00, 0x00}
	if !bytes.Contains(out, preamble) {
		t.Errorf("media/quality preamble missing; out = % x", out)
	}
}

func TestPrintNegative(t *testing.T) {
	p := makePage(16, 2, 180)
	p.NegativePrint = true
	out := printJob(t, testOptions(), testPage{p, blankRows(2, 2)})

	idx := bytes.Index(out, []byte{'M', 0x02})
	if idx < 0 {
		t.Fatal("no compression select in output")
	}
	lines := decodeRecords(t, out[idx+2:len(out)-1], false, 90)
	if len(lines) != 2 {
		t.Fatalf("decoded %d lines, want 2", len(lines))
	}
	want := bytes.Repeat([]byte{0xff}, 90)
	for i, line := range lines {
		if !bytes.Equal(line, want) {
			t.Errorf("line %d not fully black under negative printing", i)
		}
	}
}

func TestPrintShortPage(t *testing.T) {
	// Fewer rows than the header announces is not an error.
	out := printJob(t, testOptions(),
		testPage{makePage(16, 5, 180), blankRows(2, 2)})
	if out[len(out)-1] != 0x1a {
		t.Error("output does not end with eject")
	}
}

func TestPrintNoPages(t *testing.T) {
	var out bytes.Buffer
	job := NewJob(&out, testOptions())
	if err := job.Print(context.Background(), &testSource{}); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("empty job wrote %d bytes", out.Len())
	}
}

func TestPrintCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	job := NewJob(&out, testOptions())
	src := &testSource{pages: []testPage{
		{makePage(16, 100, 180), blankRows(100, 2)},
	}}
	if err := job.Print(ctx, src); err != nil {
		t.Fatalf("cancellation reported as error: %v", err)
	}
	if out.Len() == 0 || out.Bytes()[out.Len()-1] != 0x1a {
		t.Error("canceled job does not end with eject")
	}
	if bytes.Contains(out.Bytes(), []byte{'Z'}) {
		t.Error("canceled job still emitted line data")
	}
}

func TestJobCancelMethod(t *testing.T) {
	var out bytes.Buffer
	job := NewJob(&out, testOptions())
	job.Cancel()
	src := &testSource{pages: []testPage{
		{makePage(16, 100, 180), blankRows(100, 2)},
	}}
	if err := job.Print(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if out.Len() == 0 || out.Bytes()[out.Len()-1] != 0x1a {
		t.Error("canceled job does not end with eject")
	}
}

func TestPrintInvalidatePreamble(t *testing.T) {
	options := testOptions()
	options.Invalidate = true
	out := printJob(t, options,
		testPage{makePage(16, 1, 180), blankRows(1, 2)})

	if len(out) < invalidateLen+2 {
		t.Fatal("output too short")
	}
	if !bytes.Equal(out[:invalidateLen], make([]byte, invalidateLen)) {
		t.Error("output does not start with the zero preamble")
	}
	if out[invalidateLen] != 0x1b || out[invalidateLen+1] != '@' {
		t.Error("initialize does not follow the preamble")
	}
}

func TestPrintBIP(t *testing.T) {
	options := testOptions()
	options.PixelXfer = BIP
	options.BytesPerLine = 4
	out := printJob(t, options,
		testPage{makePage(16, 2, 180), blankRows(2, 2)})

	// BIP announces the line count of the page up front.
	wantHeader := []byte{0x1b, 0x2a, 0x27, 2, 0}
	if !bytes.Contains(out, wantHeader) {
		t.Errorf("BIP line count header missing; out = % x", out)
	}
	if bytes.Contains(out, []byte{'M', 0x02}) {
		t.Error("RLE compression selected for BIP transfer")
	}
	// Two blank lines expand to bare zero bytes before the eject.
	if !bytes.Equal(out[len(out)-9:], append(make([]byte, 8), 0x1a)) {
		t.Errorf("tail = % x", out[len(out)-9:])
	}
}
