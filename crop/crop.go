// Package crop cuts a user-selected rectangle out of a captured image and
// re-encodes it.
package crop

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/jaliph/residence-companion/media"
)

var ErrEmptySelection = errors.New("crop selection has no area")

// Selection is a rectangle in percent of the displayed image bounds
type Selection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultSelection covers the centered 90% of both dimensions
func DefaultSelection() Selection {
	return Selection{X: 5, Y: 5, Width: 90, Height: 90}
}

// Size is the size an image is displayed at on the client
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// clamped keeps the selection inside the displayed bounds
func (s Selection) clamped() Selection {
	x := clamp(s.X, 0, 100)
	y := clamp(s.Y, 0, 100)
	return Selection{
		X:      x,
		Y:      y,
		Width:  clamp(s.Width, 0, 100-x),
		Height: clamp(s.Height, 0, 100-y),
	}
}

// Rect converts the selection to natural pixel coordinates of an image
// with bounds natural that is shown at displayed size.
func (s Selection) Rect(natural image.Rectangle, displayed Size) (image.Rectangle, error) {
	sel := s.clamped()
	if displayed.Width <= 0 || displayed.Height <= 0 {
		displayed = Size{Width: natural.Dx(), Height: natural.Dy()}
	}

	scaleX := float64(natural.Dx()) / float64(displayed.Width)
	scaleY := float64(natural.Dy()) / float64(displayed.Height)

	// percent of displayed bounds -> displayed pixels -> natural pixels
	x0 := sel.X / 100 * float64(displayed.Width) * scaleX
	y0 := sel.Y / 100 * float64(displayed.Height) * scaleY
	w := sel.Width / 100 * float64(displayed.Width) * scaleX
	h := sel.Height / 100 * float64(displayed.Height) * scaleY

	r := image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+w)),
		int(math.Round(y0+h)),
	).Add(natural.Min).Intersect(natural)
	if r.Empty() {
		return image.Rectangle{}, ErrEmptySelection
	}
	return r, nil
}

// Apply renders only the selected region of src into a new buffer sized to
// the selection and re-encodes it as JPEG.
func Apply(src media.CapturedImage, displayed Size, sel Selection) (media.CapturedImage, error) {
	img, err := media.Decode(src)
	if err != nil {
		return media.CapturedImage{}, fmt.Errorf("failed to decode crop source: %w", err)
	}

	r, err := sel.Rect(img.Bounds(), displayed)
	if err != nil {
		return media.CapturedImage{}, err
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return media.EncodeJPEG(out, media.SourceCrop)
}
