package tiles

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/khankhulgun/khanrender/worker"
	"github.com/paulmach/orb/geojson"
)

// ExpandTileURL substitutes {z}/{x}/{y} placeholders in a tile URL
// template.
func ExpandTileURL(template string, id ID) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(id.Z),
		"{x}", strconv.Itoa(id.X),
		"{y}", strconv.Itoa(id.Y),
	)
	return r.Replace(template)
}

// VectorFetcher fetches and parses one vector source's tile, grouped by
// source-layer name. Implementations run on the worker's background
// goroutine.
type VectorFetcher interface {
	FetchTile(job worker.Job) (map[string][]*geojson.Feature, error)
}

// MultiLoader routes worker jobs to the fetcher registered for the job's
// source name. It implements worker.Loader.
type MultiLoader struct {
	Fetchers map[string]VectorFetcher
}

func (m *MultiLoader) LoadTile(job worker.Job) (map[string][]*geojson.Feature, error) {
	fetcher, ok := m.Fetchers[job.Source]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for source %q", job.Source)
	}
	return fetcher.FetchTile(job)
}

// HTTPVectorSource fetches GeoJSON tiles over HTTP. The payload is either
// a map of source-layer name to FeatureCollection or a bare
// FeatureCollection, which lands under the source's own name. Fetched
// tiles are optionally cached on disk, download-then-cache style.
type HTTPVectorSource struct {
	Client   *http.Client
	CacheDir string
}

func (s *HTTPVectorSource) FetchTile(job worker.Job) (map[string][]*geojson.Feature, error) {
	if job.URL == "" {
		return nil, fmt.Errorf("source %q has no tile URL", job.Source)
	}

	var cachePath string
	if s.CacheDir != "" {
		cachePath = filepath.Join(s.CacheDir, job.Source, fmt.Sprintf("%d/%d/%d.json", job.Z, job.X, job.Y))
		if body, err := os.ReadFile(cachePath); err == nil {
			return ParseVectorTile(job.Source, body)
		}
	}

	body, err := s.fetch(job.URL)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		os.MkdirAll(filepath.Dir(cachePath), os.ModePerm)
		os.WriteFile(cachePath, body, 0644)
	}
	return ParseVectorTile(job.Source, body)
}

func (s *HTTPVectorSource) fetch(url string) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}
	return body, nil
}

// ParseVectorTile decodes a GeoJSON tile payload into per-layer feature
// slices.
func ParseVectorTile(source string, body []byte) (map[string][]*geojson.Feature, error) {
	var layers map[string]*geojson.FeatureCollection
	if err := json.Unmarshal(body, &layers); err == nil && validLayerMap(layers) {
		out := make(map[string][]*geojson.Feature, len(layers))
		for name, fc := range layers {
			out[name] = fc.Features
		}
		return out, nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tile for source %q: %w", source, err)
	}
	return map[string][]*geojson.Feature{source: fc.Features}, nil
}

func validLayerMap(layers map[string]*geojson.FeatureCollection) bool {
	if len(layers) == 0 {
		return false
	}
	for _, fc := range layers {
		if fc == nil || fc.Type != "FeatureCollection" {
			return false
		}
	}
	return true
}

// HTTPRasterSource loads raster tile images directly, outside the worker
// protocol.
type HTTPRasterSource struct {
	Client *http.Client
}

func (s *HTTPRasterSource) LoadImage(url string) (image.Image, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch raster tile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("raster tile fetch returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster tile: %w", err)
	}
	return img, nil
}
