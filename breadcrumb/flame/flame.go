// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package flame renders breadcrumb trees as flame charts.
//
// Each closed span of a node becomes a bar whose horizontal extent is the
// span's position in time and whose row is the node's depth. Bars are
// labeled with the node name when the label fits.
//
//	img, err := flame.Render(alloc.Root(), flame.Options{Timeline: breadcrumb.GPU})
//	...
//	err = flame.WritePNG(f, alloc.Root(), flame.Options{})
package flame

import (
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/rhi/breadcrumb"
)

// ErrNoSpans is returned when the tree has no closed span to draw.
var ErrNoSpans = errors.New("flame: no closed spans")

// Options controls rendering.
type Options struct {
	// Timeline selects CPU (recording) or GPU (replay) spans.
	Timeline breadcrumb.Timeline
	// Pipeline selects the pipeline index whose spans are drawn.
	Pipeline int

	// Width is the image width in pixels (default 1200).
	Width int
	// RowHeight is the height of one depth level in pixels (default 18).
	RowHeight int

	// Background fills the image (default white).
	Background color.Color
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1200
	}
	if o.RowHeight <= 0 {
		o.RowHeight = 18
	}
	if o.Background == nil {
		o.Background = color.White
	}
	return o
}

// bar is one node's span placed on the chart.
type bar struct {
	name  string
	path  string
	row   int
	begin time.Time
	end   time.Time
}

// Render draws the closed spans under root. The root itself is drawn only
// when it has a span of its own.
func Render(root *breadcrumb.Node, opts Options) (*image.RGBA, error) {
	if root == nil {
		return nil, ErrNoSpans
	}
	if opts.Pipeline < 0 || opts.Pipeline >= breadcrumb.MaxPipelines {
		return nil, fmt.Errorf("%w: %d", breadcrumb.ErrBadPipeline, opts.Pipeline)
	}
	opts = opts.withDefaults()

	bars, start, end := collect(root, opts)
	if len(bars) == 0 {
		return nil, ErrNoSpans
	}
	rows := 0
	for _, b := range bars {
		rows = max(rows, b.row+1)
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, rows*opts.RowHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	face, err := labelFace()
	if err != nil {
		return nil, err
	}
	total := end.Sub(start)
	for _, b := range bars {
		x0 := scale(b.begin.Sub(start), total, opts.Width)
		x1 := max(scale(b.end.Sub(start), total, opts.Width), x0+1)
		y0 := b.row * opts.RowHeight
		r := image.Rect(x0, y0, x1, y0+opts.RowHeight-1)

		fill := barColor(b.path)
		draw.Draw(img, r, image.NewUniform(fill), image.Point{}, draw.Src)
		if r.Dx() > 2 {
			edge := darken(fill)
			draw.Draw(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), image.NewUniform(edge), image.Point{}, draw.Src)
		}
		label(img, face, r, b.name)
	}
	return img, nil
}

// WritePNG renders root and encodes the chart as PNG.
func WritePNG(w io.Writer, root *breadcrumb.Node, opts Options) error {
	img, err := Render(root, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func collect(root *breadcrumb.Node, opts Options) (bars []bar, start, end time.Time) {
	base := root.Depth()
	rootSpan := root.Span(opts.Timeline, opts.Pipeline).Closed()
	root.Walk(func(n *breadcrumb.Node) bool {
		s := n.Span(opts.Timeline, opts.Pipeline)
		if !s.Closed() {
			return true
		}
		row := n.Depth() - base
		if !rootSpan {
			if n == root {
				return true
			}
			row--
		}
		bars = append(bars, bar{name: n.Name(), path: n.Path(), row: row, begin: s.Begin, end: s.End})
		if start.IsZero() || s.Begin.Before(start) {
			start = s.Begin
		}
		if s.End.After(end) {
			end = s.End
		}
		return true
	})
	return bars, start, end
}

func scale(d, total time.Duration, width int) int {
	if total <= 0 {
		return 0
	}
	return int(int64(d) * int64(width) / int64(total))
}

// barColor picks a warm color from the node path so a scope keeps its
// color across charts.
func barColor(path string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	v := h.Sum32()
	return color.RGBA{
		R: 205 + uint8(v%50),
		G: 90 + uint8((v>>8)%130),
		B: 40 + uint8((v>>16)%40),
		A: 0xff,
	}
}

func darken(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R * 3 / 4, G: c.G * 3 / 4, B: c.B * 3 / 4, A: c.A}
}

var (
	faceOnce sync.Once
	face     font.Face
	faceErr  error
)

// labelFace returns the shared label face.
func labelFace() (font.Face, error) {
	faceOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			faceErr = fmt.Errorf("flame: parse label font: %w", err)
			return
		}
		face, faceErr = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    11,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return face, faceErr
}

// label draws name inside r, truncated to fit. Nothing is drawn when not even
// one character fits.
func label(img draw.Image, f font.Face, r image.Rectangle, name string) {
	const pad = 3
	avail := fixed.I(r.Dx() - 2*pad)
	if avail <= 0 {
		return
	}
	text := []rune(name)
	for len(text) > 0 && font.MeasureString(f, string(text)) > avail {
		text = text[:len(text)-1]
	}
	if len(text) == 0 {
		return
	}
	m := f.Metrics()
	baseline := r.Min.Y + (r.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: f,
		Dot:  fixed.P(r.Min.X+pad, baseline),
	}
	d.DrawString(string(text))
}
