// Package paint draws compiled style layers onto a reusable 2D surface.
package paint

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/mazznoer/csscolorparser"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Point is a tile-local pixel coordinate.
type Point struct {
	X float64
	Y float64
}

// Path is a list of subpaths in tile-local pixels.
type Path struct {
	Subpaths [][]Point
}

func (p *Path) Add(subpath []Point) {
	if len(subpath) > 1 {
		p.Subpaths = append(p.Subpaths, subpath)
	}
}

func (p *Path) Empty() bool { return len(p.Subpaths) == 0 }

// Canvas is a drawing surface backed by a rasterx filler and dasher over
// an RGBA image. One canvas is reused for a whole render pass; draw state
// (colors, stroke setup) persists between calls so batched features can
// share it.
type Canvas struct {
	img    *image.RGBA
	size   int
	filler *rasterx.Filler
	dasher *rasterx.Dasher

	fillColor   color.Color
	strokeColor color.Color
	lineWidth   float64
	lineCap     string
	lineJoin    string
	dashes      []float64
}

func NewCanvas(size int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	return &Canvas{
		img:         img,
		size:        size,
		filler:      rasterx.NewFiller(size, size, scanner),
		dasher:      rasterx.NewDasher(size, size, rasterx.NewScannerGV(size, size, img, img.Bounds())),
		fillColor:   color.Black,
		strokeColor: color.Black,
		lineWidth:   1,
		lineCap:     "butt",
		lineJoin:    "miter",
	}
}

func (c *Canvas) Image() *image.RGBA { return c.img }
func (c *Canvas) Size() int          { return c.size }

// Clear resets the whole surface to a single color.
func (c *Canvas) Clear(col color.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

func (c *Canvas) SetFillColor(col color.Color)   { c.fillColor = col }
func (c *Canvas) SetStrokeColor(col color.Color) { c.strokeColor = col }
func (c *Canvas) SetLineWidth(w float64)         { c.lineWidth = w }
func (c *Canvas) SetLineCap(cap string)          { c.lineCap = cap }
func (c *Canvas) SetLineJoin(join string)        { c.lineJoin = join }
func (c *Canvas) SetDash(dashes []float64)       { c.dashes = dashes }

// Fill rasterizes every subpath as a closed region in one pass.
func (c *Canvas) Fill(p *Path) {
	if p.Empty() {
		return
	}
	c.filler.SetColor(c.fillColor)
	for _, sub := range p.Subpaths {
		c.filler.Start(fixedPoint(sub[0]))
		for _, pt := range sub[1:] {
			c.filler.Line(fixedPoint(pt))
		}
		c.filler.Stop(true)
	}
	c.filler.Draw()
	c.filler.Clear()
}

// Stroke rasterizes every subpath with the current stroke state.
func (c *Canvas) Stroke(p *Path, closed bool) {
	if p.Empty() || c.lineWidth <= 0 {
		return
	}
	c.dasher.SetStroke(
		fixed.Int26_6(c.lineWidth*64),
		fixed.Int26_6(4*64),
		capFunc(c.lineCap), capFunc(c.lineCap),
		rasterx.RoundGap,
		joinMode(c.lineJoin),
		scaleDashes(c.dashes, c.lineWidth),
		0,
	)
	c.dasher.SetColor(c.strokeColor)
	for _, sub := range p.Subpaths {
		c.dasher.Start(fixedPoint(sub[0]))
		for _, pt := range sub[1:] {
			c.dasher.Line(fixedPoint(pt))
		}
		c.dasher.Stop(closed)
	}
	c.dasher.Draw()
	c.dasher.Clear()
}

// FillCircle draws a filled circle and, when strokeWidth > 0, its
// outline.
func (c *Canvas) FillCircle(cx, cy, r float64, strokeWidth float64) {
	if r <= 0 {
		return
	}
	c.filler.SetColor(c.fillColor)
	rasterx.AddCircle(cx, cy, r, c.filler)
	c.filler.Draw()
	c.filler.Clear()

	if strokeWidth > 0 {
		c.dasher.SetStroke(
			fixed.Int26_6(strokeWidth*64),
			fixed.Int26_6(4*64),
			rasterx.ButtCap, rasterx.ButtCap,
			rasterx.RoundGap,
			rasterx.Round,
			nil, 0,
		)
		c.dasher.SetColor(c.strokeColor)
		rasterx.AddCircle(cx, cy, r, c.dasher)
		c.dasher.Draw()
		c.dasher.Clear()
	}
}

// DrawImage scales src over the whole surface with the given opacity.
func (c *Canvas) DrawImage(src image.Image, opacity float64) {
	if opacity >= 1 {
		xdraw.ApproxBiLinear.Scale(c.img, c.img.Bounds(), src, src.Bounds(), xdraw.Over, nil)
		return
	}
	if opacity <= 0 {
		return
	}
	scaled := image.NewRGBA(c.img.Bounds())
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(c.img, c.img.Bounds(), scaled, image.Point{}, mask, image.Point{}, draw.Over)
}

// DrawIcon scales an icon into the destination rectangle.
func (c *Canvas) DrawIcon(icon image.Image, dst image.Rectangle) {
	xdraw.ApproxBiLinear.Scale(c.img, dst, icon, icon.Bounds(), xdraw.Over, nil)
}

// DrawString renders text with its baseline starting at (x, y). A halo is
// painted first by repeating the string at unit offsets out to the halo
// width.
func (c *Canvas) DrawString(face font.Face, s string, x, y float64, col color.Color, halo color.Color, haloWidth float64) {
	if haloWidth > 0 && halo != nil {
		w := int(haloWidth + 0.5)
		for dx := -w; dx <= w; dx++ {
			for dy := -w; dy <= w; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				c.drawStringAt(face, s, x+float64(dx), y+float64(dy), halo)
			}
		}
	}
	c.drawStringAt(face, s, x, y, col)
}

func (c *Canvas) drawStringAt(face font.Face, s string, x, y float64, col color.Color) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)},
	}
	d.DrawString(s)
}

func fixedPoint(p Point) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.Int26_6(p.X * 64), Y: fixed.Int26_6(p.Y * 64)}
}

func capFunc(name string) rasterx.CapFunc {
	switch name {
	case "round":
		return rasterx.RoundCap
	case "square":
		return rasterx.SquareCap
	}
	return rasterx.ButtCap
}

func joinMode(name string) rasterx.JoinMode {
	switch name {
	case "round":
		return rasterx.Round
	case "bevel":
		return rasterx.Bevel
	}
	return rasterx.Miter
}

// scaleDashes converts a dash pattern given in line-width multiples into
// the fixed units the dasher expects.
func scaleDashes(dashes []float64, width float64) []float64 {
	if len(dashes) == 0 {
		return nil
	}
	out := make([]float64, len(dashes))
	for i, d := range dashes {
		out[i] = d * width * 64
	}
	return out
}

// ParseColor turns a CSS color string and an opacity multiplier into a
// drawable color. Unparseable strings come out fully transparent.
func ParseColor(s string, opacity float64) color.Color {
	col, err := csscolorparser.Parse(s)
	if err != nil {
		return color.NRGBA{}
	}
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{
		R: uint8(col.R*255 + 0.5),
		G: uint8(col.G*255 + 0.5),
		B: uint8(col.B*255 + 0.5),
		A: uint8(col.A*opacity*255 + 0.5),
	}
}
