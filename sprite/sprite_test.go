package sprite_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/sprite"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestBuildAtlasPacking(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "hospital.png"), 16, 16, color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "school.png"), 24, 12, color.RGBA{B: 255, A: 255})

	atlas, err := sprite.BuildAtlas(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Glob returns sorted paths, so icons pack in name order.
	want := map[string]models.SpriteMeta{
		"hospital": {X: 0, Y: 0, Width: 16, Height: 16, PixelRatio: 1},
		"school":   {X: 16, Y: 0, Width: 24, Height: 12, PixelRatio: 1},
	}
	if diff := cmp.Diff(want, atlas.Meta); diff != "" {
		t.Errorf("atlas metadata mismatch (-want+got):\n%s", diff)
	}

	bounds := atlas.Image.Bounds()
	if bounds.Dx() != 40 || bounds.Dy() != 16 {
		t.Errorf("sheet is %dx%d, want 40x16", bounds.Dx(), bounds.Dy())
	}
}

func TestAtlasIconSubImage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "hospital.png"), 16, 16, color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "school.png"), 24, 12, color.RGBA{B: 255, A: 255})

	atlas, err := sprite.BuildAtlas(dir)
	if err != nil {
		t.Fatal(err)
	}

	img, meta, ok := atlas.Icon("school")
	if !ok {
		t.Fatal("school icon not found")
	}
	if meta.Width != 24 || meta.Height != 12 {
		t.Fatalf("school meta = %+v", meta)
	}
	if _, _, b, _ := img.At(meta.X+1, meta.Y+1).RGBA(); b>>8 < 200 {
		t.Error("school sub-image does not show the icon's pixels")
	}

	if _, _, ok := atlas.Icon("missing"); ok {
		t.Error("unknown icon name should not resolve")
	}
	var nilAtlas *sprite.Atlas
	if _, _, ok := nilAtlas.Icon("hospital"); ok {
		t.Error("nil atlas should not resolve icons")
	}
}

func TestSaveAndLoadAtlasRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "marker.png"), 8, 8, color.RGBA{G: 255, A: 255})

	built, err := sprite.BuildAtlas(dir)
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "sprite")
	if err := built.Save(dest); err != nil {
		t.Fatal(err)
	}

	loaded, err := sprite.LoadAtlas(dest)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(built.Meta, loaded.Meta); diff != "" {
		t.Errorf("metadata round trip mismatch (-want+got):\n%s", diff)
	}
}

func TestBuildAtlasEmptyDir(t *testing.T) {
	if _, err := sprite.BuildAtlas(t.TempDir()); err == nil {
		t.Fatal("an empty source directory should fail")
	}
}
