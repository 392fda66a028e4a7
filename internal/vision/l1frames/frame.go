package l1frames

import (
	"image"
	"image/draw"
	"time"

	"github.com/anthonynsimon/bild/effect"
)

// FrameType describes the pixel format of a frame.
type FrameType int

const (
	// FrameGreyscale frames carry a single 8-bit luminance channel.
	FrameGreyscale FrameType = iota
	// FrameColour frames carry anything else.
	FrameColour
)

// String implements fmt.Stringer.
func (t FrameType) String() string {
	switch t {
	case FrameGreyscale:
		return "greyscale"
	case FrameColour:
		return "colour"
	default:
		return "unknown"
	}
}

// Frame is one image from the frame source.
type Frame struct {
	SequenceID int64
	Image      image.Image
	CapturedAt time.Time
}

// Type reports the frame's pixel format.
func (f Frame) Type() FrameType {
	if _, ok := f.Image.(*image.Gray); ok {
		return FrameGreyscale
	}
	return FrameColour
}

// Grey returns the frame's greyscale image, or false if the frame is not
// greyscale.
func (f Frame) Grey() (*image.Gray, bool) {
	g, ok := f.Image.(*image.Gray)
	return g, ok
}

// Bounds returns the image bounds, or an empty rectangle for a frame with no
// image.
func (f Frame) Bounds() image.Rectangle {
	if f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// ToGreyscale converts any image to 8-bit greyscale. Greyscale input is
// returned as-is.
func ToGreyscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	// effect.Grayscale yields equal RGB channels in an *image.RGBA.
	grey := effect.Grayscale(img)
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, grey, grey.Bounds().Min, draw.Src)
	return g
}

// NewGreyscaleFrame wraps img as a greyscale frame, converting if needed.
func NewGreyscaleFrame(seq int64, img image.Image, capturedAt time.Time) Frame {
	return Frame{SequenceID: seq, Image: ToGreyscale(img), CapturedAt: capturedAt}
}
