package paint

import (
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Box is an axis-aligned pixel rectangle used during one tile's label
// pass.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func (b Box) Intersects(o Box) bool {
	return b.MinX < o.MaxX && b.MaxX > o.MinX && b.MinY < o.MaxY && b.MaxY > o.MinY
}

func (b Box) pad(padding float64) Box {
	return Box{b.MinX - padding, b.MinY - padding, b.MaxX + padding, b.MaxY + padding}
}

// BoxList accumulates the boxes accepted during one draw pass. It is
// shared across all symbol layers of the pass so earlier layers block
// later ones.
type BoxList struct {
	boxes []Box
}

func NewBoxList() *BoxList { return &BoxList{} }

func (l *BoxList) Collides(boxes ...Box) bool {
	for _, candidate := range boxes {
		for _, accepted := range l.boxes {
			if candidate.Intersects(accepted) {
				return true
			}
		}
	}
	return false
}

func (l *BoxList) Add(boxes ...Box) {
	l.boxes = append(l.boxes, boxes...)
}

func (l *BoxList) Len() int { return len(l.boxes) }

var (
	labelFontOnce sync.Once
	labelFont     *sfnt.Font
	labelFontErr  error
)

// labelFace builds a face for the given text size. Font selection is
// fixed to the bundled face; the style document's font stack names are
// accepted but not resolved.
func labelFace(size float64) (font.Face, error) {
	labelFontOnce.Do(func() {
		labelFont, labelFontErr = opentype.Parse(goregular.TTF)
	})
	if labelFontErr != nil {
		return nil, labelFontErr
	}
	return opentype.NewFace(labelFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// expandTemplate substitutes {property} tokens in a text-field or
// icon-image template with the feature's property values.
func expandTemplate(template string, feature *geojson.Feature) string {
	if !strings.Contains(template, "{") {
		return template
	}
	var out strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			break
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		key := rest[open+1 : open+close]
		if feature != nil {
			if v, ok := feature.Properties[key]; ok && v != nil {
				out.WriteString(fmt.Sprint(v))
			}
		}
		rest = rest[open+close+1:]
	}
	return out.String()
}

func transformCase(s, transform string) string {
	switch transform {
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	}
	return s
}

// textLayout is the geometry of one label, derived purely from evaluated
// style values.
type textLayout struct {
	text string
	box  Box
	dotX float64
	dotY float64
	face font.Face
}

// layoutText measures a label and positions it relative to its anchor.
// Anchor, offset, padding, halo width and line height all enter the box
// as pure inputs.
func layoutText(text string, anchor Point, anchorPos string, offsetX, offsetY, size, padding, lineHeight, haloWidth float64) (textLayout, error) {
	face, err := labelFace(size)
	if err != nil {
		return textLayout{}, err
	}

	width := float64(font.MeasureString(face, text)) / 64
	height := size * lineHeight

	// Offsets are given in ems.
	x := anchor.X + offsetX*size
	y := anchor.Y + offsetY*size

	var minX, minY float64
	switch anchorPos {
	case "left":
		minX, minY = x, y-height/2
	case "right":
		minX, minY = x-width, y-height/2
	case "top":
		minX, minY = x-width/2, y
	case "bottom":
		minX, minY = x-width/2, y-height
	default: // center
		minX, minY = x-width/2, y-height/2
	}

	box := Box{minX, minY, minX + width, minY + height}.pad(padding + haloWidth)

	metrics := face.Metrics()
	baseline := minY + height/2 + float64(metrics.Ascent-metrics.Descent)/64/2

	return textLayout{
		text: text,
		box:  box,
		dotX: minX,
		dotY: baseline,
		face: face,
	}, nil
}

// layoutIcon positions an icon box around its anchor.
func layoutIcon(anchor Point, width, height, offsetX, offsetY, padding float64) Box {
	x := anchor.X + offsetX
	y := anchor.Y + offsetY
	return Box{
		MinX: x - width/2,
		MinY: y - height/2,
		MaxX: x + width/2,
		MaxY: y + height/2,
	}.pad(padding)
}
