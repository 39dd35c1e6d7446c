// Package sprite builds and loads the icon atlas consumed by symbol
// layers.
package sprite

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/khankhulgun/khanrender/models"
)

// Atlas is a packed sprite sheet plus per-icon placement metadata.
type Atlas struct {
	Image image.Image
	Meta  map[string]models.SpriteMeta
}

// Icon returns the sub-image for a named icon.
func (a *Atlas) Icon(name string) (image.Image, models.SpriteMeta, bool) {
	if a == nil {
		return nil, models.SpriteMeta{}, false
	}
	meta, ok := a.Meta[name]
	if !ok {
		return nil, models.SpriteMeta{}, false
	}
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	src, ok := a.Image.(subImager)
	if !ok {
		return nil, models.SpriteMeta{}, false
	}
	rect := image.Rect(meta.X, meta.Y, meta.X+meta.Width, meta.Y+meta.Height)
	return src.SubImage(rect), meta, true
}

// BuildAtlas packs every PNG and SVG in srcDir into one sprite sheet.
// Icons are laid out in a single row and named after their file.
func BuildAtlas(srcDir string) (*Atlas, error) {
	files, err := filepath.Glob(filepath.Join(srcDir, "*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sprite sources: %w", err)
	}

	var images []image.Image
	var names []string
	for _, file := range files {
		var img image.Image
		switch strings.ToLower(filepath.Ext(file)) {
		case ".png":
			img, err = loadPNG(file)
		case ".svg":
			img, err = RenderSVGFile(file, 1)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load sprite source %s: %w", file, err)
		}
		images = append(images, img)
		names = append(names, strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no sprite sources found in %s", srcDir)
	}

	var sheetWidth, maxHeight int
	meta := make(map[string]models.SpriteMeta, len(images))
	for i, img := range images {
		bounds := img.Bounds()
		meta[names[i]] = models.SpriteMeta{
			X:          sheetWidth,
			Y:          0,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			PixelRatio: 1,
		}
		sheetWidth += bounds.Dx()
		if bounds.Dy() > maxHeight {
			maxHeight = bounds.Dy()
		}
	}

	sheet := image.NewRGBA(image.Rect(0, 0, sheetWidth, maxHeight))
	x := 0
	for _, img := range images {
		bounds := img.Bounds()
		draw.Draw(sheet, image.Rect(x, 0, x+bounds.Dx(), bounds.Dy()), img, bounds.Min, draw.Over)
		x += bounds.Dx()
	}

	return &Atlas{Image: sheet, Meta: meta}, nil
}

// Save writes the atlas image and its JSON metadata next to each other,
// in the sheet + sidecar layout map viewers expect.
func (a *Atlas) Save(destFile string) error {
	out, err := os.Create(destFile + ".png")
	if err != nil {
		return fmt.Errorf("failed to create sprite image: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, a.Image); err != nil {
		return fmt.Errorf("failed to encode sprite image: %w", err)
	}

	data, err := json.MarshalIndent(a.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sprite metadata: %w", err)
	}
	if err := os.WriteFile(destFile+".json", data, 0644); err != nil {
		return fmt.Errorf("failed to write sprite metadata: %w", err)
	}
	return nil
}

// LoadAtlas reads a sheet + sidecar pair produced by Save (or any
// compatible sprite toolchain).
func LoadAtlas(destFile string) (*Atlas, error) {
	img, err := loadPNG(destFile + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to load sprite image: %w", err)
	}
	data, err := os.ReadFile(destFile + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read sprite metadata: %w", err)
	}
	var meta map[string]models.SpriteMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse sprite metadata: %w", err)
	}
	return &Atlas{Image: img, Meta: meta}, nil
}

func loadPNG(file string) (image.Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
