package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
	"github.com/philpem/printer-driver-ptouch/raster"
)

// mmPerPt is the length of a PostScript point in mm.
const mmPerPt = 25.4 / 72.0

// errJobCanceled is the internal signal that the row loop was
// preempted; cancellation is not reported as a job error.
var errJobCanceled = errors.New("job canceled")

func lrint(f float64) int {
	return int(math.Round(f))
}

// Job converts raster pages into one printer command stream. A Job
// processes pages strictly in input order and may be used once.
type Job struct {
	options JobOptions
	w       *cmdWriter
	lb      *lineBuffer

	// emptyLines counts blank rows waiting to be stored; runs of
	// blank rows are compressed lazily when a nonblank row or the
	// page end forces them out.
	emptyLines int

	page     int
	lastPage bool

	canceled     atomic.Bool
	finalizeOnce sync.Once

	progressPage      atomic.Uint32
	progressHeight    atomic.Uint32
	progressCompleted atomic.Uint32
}

// NewJob returns a job writing the command stream to out.
func NewJob(out io.Writer, options JobOptions) *Job {
	return &Job{
		options: options,
		w:       &cmdWriter{w: out},
		lb:      newLineBuffer(&options),
	}
}

// Cancel requests that the job stop. The row loop notices at the next
// row boundary and runs the same finalize sequence as a normal job
// end: eject marker, then release of the line buffer.
func (j *Job) Cancel() {
	j.canceled.Store(true)
}

// finalize emits the eject marker and releases the buffers. Both the
// normal end-of-job path and cancellation land here, exactly once.
func (j *Job) finalize() {
	j.finalizeOnce.Do(func() {
		j.w.eject()
		j.lb.release()
	})
}

// Print reads pages from src until exhausted and emits the complete
// job command stream. Cancellation, via ctx or Cancel, finalizes the
// job cleanly and is not an error.
func (j *Job) Print(ctx context.Context, src raster.Source) (err error) {
	defer logInternal.PrintIfErr("print job failed", &err)
	stopProgress := j.startProgressReporter()
	defer stopProgress()

	header, err := src.NextPage()
	if err == io.EOF {
		return nil // no pages, no output
	}
	if err != nil {
		return err
	}

	var prev *raster.Page
	for j.page = 1; ; j.page++ {
		j.progressPage.Store(uint32(j.page))
		logInternal.Debugf("PageSize: %.2fx%.2f pt / %.2fx%.2f mm",
			header.PageSize[0], header.PageSize[1],
			header.PageSize[0]*mmPerPt, header.PageSize[1]*mmPerPt)
		logInternal.Debugf("HWResolution: %dx%ddpi, Width Height: %d %d",
			header.HWResolution[0], header.HWResolution[1],
			header.Width, header.Height)

		if j.page == 1 {
			j.emitJobCmds()
			j.emitPageCmds(header, nil)
		} else {
			j.emitPageCmds(header, prev)
		}
		j.bindPreamble(header)

		if err := j.emitRasterLines(ctx, src, header); err != nil {
			if errors.Is(err, errJobCanceled) {
				j.finalize()
				logInternal.LogMessage(logInternal.INFO, "print job canceled")
				return j.w.err
			}
			return err
		}

		var xormask byte
		if header.NegativePrint {
			xormask = 0xff
		}
		pt2pxY := float64(header.HWResolution[1]) / 72.0

		next, nerr := src.NextPage()
		j.lastPage = nerr == io.EOF
		if nerr != nil && nerr != io.EOF {
			return nerr
		}

		if !j.lastPage {
			if !j.options.ConcatPages {
				if err := j.drainEmptyLines(xormask); err != nil {
					return err
				}
				if err := j.lb.flush(j.w); err != nil {
					return err
				}
				// Page end marker without feed.
				j.w.formFeed()
			}
		} else {
			if j.options.ConcatPages {
				// Trailing blank rows below the imaging box belong to
				// the concatenated output.
				j.emptyLines = lrint(header.ImagingBBox[1] * pt2pxY)
			}
			if err := j.drainEmptyLines(xormask); err != nil {
				return err
			}
			if err := j.lb.flush(j.w); err != nil {
				return err
			}
		}

		logInternal.Page(j.page, 1)
		if j.w.err != nil {
			return j.w.err
		}
		if j.lastPage {
			break
		}
		prev, header = header, next
	}

	j.finalize()
	return j.w.err
}

func (j *Job) drainEmptyLines(xormask byte) error {
	if j.emptyLines == 0 {
		return nil
	}
	n := j.emptyLines
	j.emptyLines = 0
	return j.lb.storeEmptyLines(j.w, n, xormask)
}

// emitJobCmds emits the job-start command block.
func (j *Job) emitJobCmds() {
	if j.options.Invalidate {
		j.w.invalidate()
	}
	j.w.initialize()
	if m := j.options.LegacyXferMode; m >= 0 && m < 0x100 {
		j.w.legacyTransferMode(m)
	}
	if m := j.options.XferMode; m >= 0 && m < 0x100 {
		j.w.transferMode(m)
	}
	if j.options.StatusNotify != -1 {
		j.w.statusNotification(j.options.StatusNotify)
	}
}

// clampTapeWidthMM converts the page width to whole mm, clamping to
// the one-byte protocol field rather than failing the job.
func clampTapeWidthMM(widthPt float64) int {
	mm := lrint(widthPt * mmPerPt)
	if mm > 0xff {
		logInternal.LogMessage(logInternal.ERROR,
			fmt.Sprintf("Page width (%dmm) exceeds 255mm", mm))
		mm = 0xff
	}
	return mm
}

// feedAmount derives the ESC i M feed bits from the page's advance
// settings.
func feedAmount(p *raster.Page) uint {
	if p.AdvanceMedia == raster.AdvanceNone {
		return 0
	}
	return p.AdvanceDistance
}

func (j *Job) variousMode(p *raster.Page) byte {
	cut := j.options.AutoCut || j.options.CutMark || p.CutMedia != raster.CutNone
	mirror := (j.options.MirrorPrint || p.MirrorPrint) && !j.options.SoftwareMirror
	return packVariousMode(cut, mirror, feedAmount(p))
}

func (j *Job) advancedMode(p *raster.Page) byte {
	var draft, hires bool
	if !j.options.LegacyHires {
		if p.HWResolution[0] == 360 {
			draft = p.HWResolution[1] == 180
			hires = p.HWResolution[1] == 720
		}
		if p.HWResolution[0] == 300 {
			hires = p.HWResolution[1] == 600
		}
	}
	return packAdvancedMode(draft, j.options.HalfCut, !j.options.ChainPrinting, hires)
}

// emitPageCmds emits the page setup block. With prev == nil the full
// block is forced; otherwise only commands whose determining page
// fields changed since prev are re-emitted.
func (j *Job) emitPageCmds(header, prev *raster.Page) {
	force := prev == nil
	pt2pxY := float64(header.HWResolution[1]) / 72.0

	if force {
		if d := j.options.PrintDensity; d >= 1 && d <= 5 {
			j.w.printDensity(d)
		}
	}

	if j.options.LegacyHires &&
		header.HWResolution[0] == 360 &&
		(header.HWResolution[1] == 360 || header.HWResolution[1] == 720) {
		if force || prev.HWResolution != header.HWResolution ||
			prev.PageSize[0] != header.PageSize[0] {
			j.w.widthResolution(clampTapeWidthMM(header.PageSize[0]),
				header.HWResolution[1] == 720)
		}
	}

	if force || j.variousMode(header) != j.variousMode(prev) {
		j.w.variousMode(j.variousMode(header))
	}

	if force || j.advancedMode(header) != j.advancedMode(prev) {
		j.w.advancedMode(j.advancedMode(header))
	}

	if force {
		if j.options.CutLabel != -1 {
			j.w.cutEvery(j.options.CutLabel)
		}
		var margin float64
		if j.options.Media != MediaLabels {
			margin = j.options.MinMargin + j.options.Margin
		}
		j.w.margin(lrint(margin * pt2pxY))
		if j.options.PixelXfer == RLE {
			j.w.compressionRLE()
		}
	}

	// BIP transfers announce the line total of every page up front.
	if j.options.PixelXfer == BIP {
		j.w.bipLineCount(uint(lrint(header.PageSize[1] * pt2pxY)))
	}
}

// bindPreamble points the flush preamble at the current page so a
// flush under LabelPreamble announces its media and line count.
func (j *Job) bindPreamble(header *raster.Page) {
	if !j.options.LabelPreamble {
		j.lb.preamble = nil
		return
	}
	j.lb.preamble = func(w *cmdWriter, lines uint) {
		j.emitQualityRollfedSize(w, header, lines)
	}
}

// emitQualityRollfedSize emits the ESC i z media/quality preamble for
// one flush of lines pixel lines.
func (j *Job) emitQualityRollfedSize(w *cmdWriter, header *raster.Page, lines uint) {
	valid := byte(piWidth)
	if j.options.LabelRecovery {
		valid |= piRecover
	}
	tapeWidthMM := clampTapeWidthMM(header.PageSize[0])

	var mediaType byte
	tapeLengthMM := 0
	if j.options.QLSeries {
		if j.options.PrintQualityHigh {
			valid |= piQuality
		}
		valid |= piKind
		switch j.options.Media {
		case MediaTape:
			mediaType = 0x0a
		case MediaLabels:
			mediaType = 0x0b
			valid |= piLength
			tapeLengthMM = lrint(header.PageSize[1] * mmPerPt)
		}
		if tapeLengthMM > 0xff {
			logInternal.LogMessage(logInternal.ERROR,
				fmt.Sprintf("Page height (%dmm) exceeds 255mm; use continuous-length tape", tapeLengthMM))
			tapeLengthMM = 0xff
		}
	}
	if j.options.PTSeries {
		// PT series set media type 0x09 for draft and hi-res
		// printing, but not for normal resolution.
		if header.HWResolution[0] == 360 &&
			(header.HWResolution[1] == 180 || header.HWResolution[1] == 720) {
			valid |= piKind
			mediaType = 0x09
		}
	}

	var whichPage byte
	if j.page > 1 {
		whichPage = 1
	}
	if j.options.LastPageFlag && j.lastPage {
		whichPage = 2
	}
	w.mediaQuality(valid, mediaType, tapeWidthMM, tapeLengthMM, lines, whichPage)
}

// emitRasterLines feeds one page of rows through the transform and
// the encoder. Fewer rows than declared is not an error; the page is
// finalized with the rows received.
func (j *Job) emitRasterLines(ctx context.Context, src raster.Source, header *raster.Page) error {
	var xormask byte
	if header.NegativePrint {
		xormask = 0xff
	}
	doMirror := j.options.SoftwareMirror && (j.options.MirrorPrint || header.MirrorPrint)
	bytesPerLine := j.options.BytesPerLine

	bufLen := int(header.BytesPerLine)
	if bufLen > 0xff {
		bufLen = 0xff
	}
	if bufLen > bytesPerLine {
		bufLen = bytesPerLine
	}

	pt2px := [2]float64{
		float64(header.HWResolution[0]) / 72.0,
		float64(header.HWResolution[1]) / 72.0,
	}

	// Horizontal placement: padding bits to the right of the pixel
	// data, plus a sub-byte shift.
	rightSpacingPx := 0
	if header.ImagingBBox[2] < header.PageSize[0] {
		rightSpacingPx = int((header.PageSize[0] - header.ImagingBBox[2]) * pt2px[0])
	}
	var rightPaddingBits int
	if j.options.Align == AlignCenter {
		leftSpacingPx := int(header.ImagingBBox[0] * pt2px[0])
		width := leftSpacingPx + int(header.Width) + rightSpacingPx
		if bytesPerLine*8 >= width {
			rightPaddingBits = (bytesPerLine*8-width)/2 + rightSpacingPx
		}
	} else {
		rightPaddingBits = rightSpacingPx
	}
	rightPaddingBytes := rightPaddingBits / 8
	shift := rightPaddingBits % 8
	// If the width is not an integral number of bytes, shift right
	// when not mirroring so printing starts leftmost.
	if !doMirror {
		shift -= (8 - int(header.Width)%8) % 8
	}
	shiftPositive := 0
	if shift > 0 {
		shiftPositive = 1
	}
	if bufLen+rightPaddingBytes+shiftPositive > bytesPerLine {
		if rightPaddingBytes+shiftPositive > bytesPerLine {
			rightPaddingBytes = bytesPerLine - shiftPositive
		}
		bufLen = bytesPerLine - rightPaddingBytes - shiftPositive
	}

	// Vertical placement: blank rows above and below the imaging box.
	topEmpty := 0
	if header.ImagingBBox[3] != 0 && (!j.options.ConcatPages || j.page == 1) {
		topEmpty = lrint((header.PageSize[1] - header.ImagingBBox[3]) * pt2px[1])
	}
	imageHeightPx := lrint(header.PageSize[1] * pt2px[1])
	botEmpty := 0
	if imageHeightPx >= topEmpty+int(header.Height) {
		botEmpty = imageHeightPx - topEmpty - int(header.Height)
	}

	// The printer enforces a minimum blank margin on continuous
	// media; round up by skipping bitmap rows when the page's own
	// margin is too small. Pre-cut labels carry the margin in the
	// die cut itself.
	topSkip, botSkip := 0, 0
	minFeed := lrint(j.options.MinMargin * pt2px[1])
	if j.options.Media == MediaLabels && topEmpty > 0 {
		topEmpty = 0
	} else if topEmpty >= minFeed {
		topEmpty -= minFeed
	} else {
		topSkip = minFeed - topEmpty
		topEmpty = 0
	}
	if j.options.Media == MediaLabels && botEmpty > 0 {
		botEmpty = 0
	} else if botEmpty >= minFeed {
		botEmpty -= minFeed
	} else {
		botSkip = minFeed - botEmpty
		botEmpty = 0
	}

	j.progressHeight.Store(uint32(header.Height))
	j.progressCompleted.Store(0)

	j.emptyLines += topEmpty

	rowBuf := make([]byte, header.BytesPerLine)
	lineBuf := make([]byte, bytesPerLine)
	height := int(header.Height)
	for y := 0; y < height; y++ {
		if j.canceled.Load() || ctx.Err() != nil {
			return errJobCanceled
		}
		j.progressCompleted.Store(uint32(y))
		n, err := src.ReadRow(rowBuf)
		if err != nil || n < 1 {
			break // short page
		}
		if y < topSkip || y+botSkip >= height {
			continue
		}
		nonempty := raster.GenerateEmitLine(rowBuf, lineBuf, bufLen, bytesPerLine,
			rightPaddingBytes, shift, doMirror, xormask)
		if nonempty {
			if err := j.drainEmptyLines(xormask); err != nil {
				return err
			}
			if err := j.lb.storeLine(j.w, lineBuf); err != nil {
				return err
			}
		} else {
			j.emptyLines++
		}
	}
	j.progressCompleted.Store(uint32(height))

	if botEmpty != 0 && !j.options.ConcatPages {
		j.emptyLines += botEmpty
	}
	return j.w.err
}

// startProgressReporter logs page progress once a second. It only
// reads the progress counters, so it never disturbs encoding state.
func (j *Job) startProgressReporter() (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var oldPage, oldCompleted uint32
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				page := j.progressPage.Load()
				height := j.progressHeight.Load()
				completed := j.progressCompleted.Load()
				if height == 0 || (page == oldPage && completed == oldCompleted) {
					continue
				}
				oldPage, oldCompleted = page, completed
				logInternal.LogMessage(logInternal.INFO,
					fmt.Sprintf("printing page %d, %d%% done", page, completed*100/height))
			}
		}
	}()
	return func() { close(done) }
}
