package printer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOption is wrapped by all job-option parse failures.
var ErrInvalidOption = errors.New("invalid job option")

// Transfer is the pixel data transfer mode.
type Transfer int

const (
	ULP Transfer = iota // uncompressed line printing
	RLE                 // run-length encoding
	BIP                 // bit image printing
)

// Align is the pixel data alignment on the tape.
type Align int

const (
	AlignRight Align = iota
	AlignCenter
)

// Media is the configured media class.
type Media int

const (
	MediaTape Media = iota
	MediaLabels
)

// JobOptions is the immutable per-job configuration snapshot.
type JobOptions struct {
	PixelXfer        Transfer
	PrintQualityHigh bool
	AutoCut          bool
	HalfCut          bool
	CutMark          bool
	CutLabel         int // cut each N labels; -1 = don't set
	ChainPrinting    bool
	MirrorPrint      bool
	PTSeries         bool
	QLSeries         bool
	BytesPerLine     int // print head width in bytes, 1..255
	Align            Align
	Media            Media
	SoftwareMirror   bool
	PrintDensity     int // 1=light .. 5=dark, 0 = don't change
	LegacyXferMode   int // ESC i R argument; -1 = don't set
	XferMode         int // ESC i a argument; -1 = don't set
	LabelPreamble    bool
	LabelRecovery    bool
	LastPageFlag     bool
	LegacyHires      bool
	ConcatPages      bool
	MinMargin        float64 // points
	Margin           float64 // points
	StatusNotify     int     // ESC i ! argument; -1 = don't set

	// Invalidate prepends 350 zero bytes so a printer stuck waiting
	// for command data ignores its way back to a known state.
	Invalidate bool

	// BufferCeiling bounds the RLE line buffer, in bytes.
	BufferCeiling int

	// MaxLinesWaiting triggers an automatic flush once this many
	// encoded lines are buffered. 0 means no automatic flushing.
	MaxLinesWaiting int
}

// DefaultJobOptions returns the option defaults.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		PixelXfer:        RLE,
		PrintQualityHigh: true,
		CutLabel:         -1,
		ChainPrinting:    true,
		BytesPerLine:     90,
		Align:            AlignRight,
		Media:            MediaTape,
		LegacyXferMode:   -1,
		XferMode:         -1,
		StatusNotify:     -1,
		Invalidate:       true,
		BufferCeiling:    1000000,
	}
}

// ParseJobOptions parses a job option string of space-separated
// "Name=Value" assignments and "Flag"/"noFlag" booleans into a
// JobOptions snapshot. Any unknown name or out-of-range value is
// rejected before a single output byte is produced.
func ParseJobOptions(str string) (JobOptions, error) {
	options := DefaultJobOptions()

	intOptions := []struct {
		name     string
		value    *int
		min, max int
	}{
		{"BytesPerLine", &options.BytesPerLine, 1, 255},
		{"CutLabel", &options.CutLabel, 0, 255},
		{"PrintDensity", &options.PrintDensity, 0, 5},
		{"LegacyTransferMode", &options.LegacyXferMode, 0, 255},
		{"TransferMode", &options.XferMode, 0, 255},
		{"StatusNotification", &options.StatusNotify, 0, 1},
	}
	boolOptions := []struct {
		name  string
		value *bool
	}{
		{"AutoCut", &options.AutoCut},
		{"ChainPrinting", &options.ChainPrinting},
		{"ConcatPages", &options.ConcatPages},
		{"CutMark", &options.CutMark},
		{"HalfCut", &options.HalfCut},
		{"Invalidate", &options.Invalidate},
		{"LabelPreamble", &options.LabelPreamble},
		{"LabelRecovery", &options.LabelRecovery},
		{"LastPageFlag", &options.LastPageFlag},
		{"LegacyHires", &options.LegacyHires},
		{"MirrorPrint", &options.MirrorPrint},
		{"PT", &options.PTSeries},
		{"QL", &options.QLSeries},
		{"SoftwareMirror", &options.SoftwareMirror},
	}
	floatOptions := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"MinMargin", &options.MinMargin, 0, 1e6},
		{"Margin", &options.Margin, 0, 1e6},
	}

next:
	for _, tok := range strings.Fields(str) {
		name, value := tok, ""
		if i := strings.IndexByte(tok, '='); i >= 0 {
			name, value = tok[:i], tok[i+1:]
		}

		switch {
		case strings.EqualFold(name, "PixelXfer"):
			switch {
			case strings.EqualFold(value, "RLE"):
				options.PixelXfer = RLE
			case strings.EqualFold(value, "BIP"):
				options.PixelXfer = BIP
			case strings.EqualFold(value, "ULP"):
				options.PixelXfer = ULP
			default:
				return options, fmt.Errorf("%w: the value of %s must be RLE, BIP or ULP", ErrInvalidOption, name)
			}
			continue
		case strings.EqualFold(name, "PrintQuality"):
			switch {
			case strings.EqualFold(value, "High"):
				options.PrintQualityHigh = true
			case strings.EqualFold(value, "Fast"):
				options.PrintQualityHigh = false
			default:
				return options, fmt.Errorf("%w: the value of %s must be High or Fast", ErrInvalidOption, name)
			}
			continue
		case strings.EqualFold(name, "Align"):
			switch {
			case strings.EqualFold(value, "Right"):
				options.Align = AlignRight
			case strings.EqualFold(value, "Center"):
				options.Align = AlignCenter
			default:
				return options, fmt.Errorf("%w: the value of %s must be Right or Center", ErrInvalidOption, name)
			}
			continue
		case strings.EqualFold(name, "MediaType"):
			switch {
			case strings.EqualFold(value, "Tape"):
				options.Media = MediaTape
			case strings.EqualFold(value, "Labels"):
				options.Media = MediaLabels
			default:
				return options, fmt.Errorf("%w: the value of %s must be Tape or Labels", ErrInvalidOption, name)
			}
			continue
		}

		for _, o := range intOptions {
			if strings.EqualFold(name, o.name) {
				v, err := strconv.ParseInt(value, 0, 32)
				if err != nil || int(v) < o.min || int(v) > o.max {
					return options, fmt.Errorf("%w: the value of %s must be an integer between %d and %d", ErrInvalidOption, o.name, o.min, o.max)
				}
				*o.value = int(v)
				continue next
			}
		}

		for _, o := range boolOptions {
			if strings.EqualFold(name, o.name) {
				if value == "" {
					*o.value = true
				} else {
					*o.value = strings.EqualFold(value, "true")
				}
				continue next
			}
			if strings.EqualFold(name, "no"+o.name) && value == "" {
				*o.value = false
				continue next
			}
		}

		for _, o := range floatOptions {
			if strings.EqualFold(name, o.name) {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil || v < o.min || v > o.max {
					return options, fmt.Errorf("%w: the value of %s must be a number between %g and %g", ErrInvalidOption, o.name, o.min, o.max)
				}
				*o.value = v
				continue next
			}
		}

		return options, fmt.Errorf("%w: unknown option %s", ErrInvalidOption, name)
	}

	return options, nil
}
