// Package render draws snapshots of simulation runs.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"golang.org/x/image/draw"
)

const (
	// The maximum width and height, in pixels, of a drawn image.
	MaxSize = 4096

	ErrTypeTooLarge = "image_too_large"
)

var (
	Background    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	BoundaryColor = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	PointColor    = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	RangeColor    = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	FoundColor    = color.RGBA{R: 0, G: 200, B: 0, A: 255}
)

// Options configures a snapshot.
type Options struct {
	// The query range to outline. Points it contains are highlighted.
	Range *quadtree.Rectangle

	// The output width in pixels. The image is scaled when it differs from
	// the run boundary width. 0 keeps the boundary width.
	Width int
}

// Snapshot draws the run partition boundaries, its points and the optional
// query range.
func Snapshot(run *models.Run, opts Options) (image.Image, error) {
	boundary := run.Boundary()

	w := int(math.Ceil(boundary.W))
	h := int(math.Ceil(boundary.H))
	if w > MaxSize || h > MaxSize {
		return nil, errors.New("run boundary is too large to be drawn").
			WithType(ErrTypeTooLarge).
			WithTag("boundary", boundary.String()).
			WithTag("max_size", MaxSize)
	}

	c := canvas{
		img:    image.NewRGBA(image.Rect(0, 0, w, h)),
		origin: quadtree.Point{X: boundary.X, Y: boundary.Y},
	}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	for _, b := range run.Boundaries() {
		c.outline(b, BoundaryColor)
	}

	for _, p := range run.Points() {
		if boundary.Contains(p) {
			c.dot(p, PointColor)
		}
	}

	if opts.Range != nil {
		c.outline(*opts.Range, RangeColor)

		for _, p := range run.Query(*opts.Range) {
			c.dot(p, FoundColor)
		}
	}

	if opts.Width <= 0 || opts.Width == w {
		return c.img, nil
	}
	return scale(c.img, opts.Width)
}

// PNG writes a PNG encoded snapshot of the run.
func PNG(wr io.Writer, run *models.Run, opts Options) error {
	img, err := Snapshot(run, opts)
	if err != nil {
		return err
	}

	return EncodePNG(wr, img)
}

// EncodePNG writes the given image in PNG format.
func EncodePNG(wr io.Writer, img image.Image) error {
	if err := png.Encode(wr, img); err != nil {
		return errors.New("encoding png failed").Wrap(err)
	}
	return nil
}

func scale(src *image.RGBA, width int) (image.Image, error) {
	b := src.Bounds()
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	height = max(height, 1)

	if width > MaxSize || height > MaxSize {
		return nil, errors.New("scaled image is too large").
			WithType(ErrTypeTooLarge).
			WithTag("width", width).
			WithTag("height", height).
			WithTag("max_size", MaxSize)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, nil
}

type canvas struct {
	img    *image.RGBA
	origin quadtree.Point
}

func (c canvas) outline(r quadtree.Rectangle, col color.Color) {
	b := c.img.Bounds()
	minX, minY := float64(b.Min.X), float64(b.Min.Y)
	maxX, maxY := float64(b.Max.X-1), float64(b.Max.Y-1)

	left := math.Floor(r.X - c.origin.X)
	top := math.Floor(r.Y - c.origin.Y)
	right := math.Floor(r.X + r.W - c.origin.X)
	bottom := math.Floor(r.Y + r.H - c.origin.Y)

	// The right and bottom edges of the surface fall one pixel outside the
	// image.
	if right == maxX+1 {
		right = maxX
	}
	if bottom == maxY+1 {
		bottom = maxY
	}

	if !(left <= maxX && right >= minX && top <= maxY && bottom >= minY) {
		return
	}

	// Edges are clamped in float space so that only visible pixels are
	// walked.
	x0, x1 := int(math.Max(left, minX)), int(math.Min(right, maxX))
	y0, y1 := int(math.Max(top, minY)), int(math.Min(bottom, maxY))

	for x := x0; x <= x1; x++ {
		if top >= minY {
			c.set(x, int(top), col)
		}
		if bottom <= maxY {
			c.set(x, int(bottom), col)
		}
	}
	for y := y0; y <= y1; y++ {
		if left >= minX {
			c.set(int(left), y, col)
		}
		if right <= maxX {
			c.set(int(right), y, col)
		}
	}
}

// dot draws a 3x3 pixel square centered on p.
func (c canvas) dot(p quadtree.Point, col color.Color) {
	x := int(math.Floor(p.X - c.origin.X))
	y := int(math.Floor(p.Y - c.origin.Y))

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			c.set(x+dx, y+dy, col)
		}
	}
}

func (c canvas) set(x, y int, col color.Color) {
	if image.Pt(x, y).In(c.img.Bounds()) {
		c.img.Set(x, y, col)
	}
}
