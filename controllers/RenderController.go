package controllers

import (
	"bytes"
	"fmt"
	"image/png"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/render"
	"github.com/khankhulgun/khanrender/sched"
	"github.com/khankhulgun/khanrender/sprite"
	"github.com/khankhulgun/khanrender/tiles"
	"github.com/khankhulgun/khanrender/worker"
)

// MapInstance is one registered map: its style document plus the loading
// and rendering pipeline serving its tiles.
type MapInstance struct {
	ID           string
	Style        *models.Style
	Scheduler    *sched.Scheduler
	Dispatcher   *worker.Dispatcher
	Orchestrator *tiles.Orchestrator
	Renderer     *render.Renderer

	waitersMu sync.Mutex
	waiters   map[tiles.ID][]chan *tiles.Tile
}

// MapOptions configures a map registration. Fetchers overrides the
// default HTTP fetcher per source name; database-backed sources are
// registered here as tiles.DBVectorSource values.
type MapOptions struct {
	Atlas    *sprite.Atlas
	Fetchers map[string]tiles.VectorFetcher
}

var (
	registryMu sync.Mutex
	registry   = map[string]*MapInstance{}
)

// RegisterMap builds the pipeline for one style document and makes it
// addressable by the tile handlers. Registering an id again replaces the
// previous instance.
func RegisterMap(id string, style *models.Style, opts MapOptions) (*MapInstance, error) {
	if len(style.Sources) == 0 && len(style.Layers) == 0 {
		return nil, fmt.Errorf("map %q has an empty style", id)
	}

	fetchers := make(map[string]tiles.VectorFetcher)
	for name, src := range style.Sources {
		if f, ok := opts.Fetchers[name]; ok {
			fetchers[name] = f
			continue
		}
		if src.Type != "raster" {
			fetchers[name] = &tiles.HTTPVectorSource{CacheDir: Config.TileCacheDir}
		}
	}

	s := sched.New()
	dispatcher := worker.NewDispatcher(&tiles.MultiLoader{Fetchers: fetchers}, Config.BatchSize)
	orchestrator := tiles.NewOrchestrator(style.Sources, dispatcher, &tiles.HTTPRasterSource{})
	renderer := render.New(s, opts.Atlas, Config.TileSize)
	renderer.SetStyle(style)

	inst := &MapInstance{
		ID:           id,
		Style:        style,
		Scheduler:    s,
		Dispatcher:   dispatcher,
		Orchestrator: orchestrator,
		Renderer:     renderer,
		waiters:      make(map[tiles.ID][]chan *tiles.Tile),
	}

	registryMu.Lock()
	old := registry[id]
	registry[id] = inst
	registryMu.Unlock()

	if old != nil {
		old.Scheduler.Stop()
		old.Dispatcher.Stop()
	}
	return inst, nil
}

// LookupMap returns a registered map instance.
func LookupMap(id string) (*MapInstance, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	inst, ok := registry[id]
	return inst, ok
}

// UnregisterMap tears down a map's pipeline.
func UnregisterMap(id string) {
	registryMu.Lock()
	inst, ok := registry[id]
	if ok {
		delete(registry, id)
	}
	registryMu.Unlock()
	if ok {
		inst.Scheduler.Stop()
		inst.Dispatcher.Stop()
	}
}

func parseTileParams(c *fiber.Ctx) (int, int, int, error) {
	z, err := strconv.Atoi(c.Params("z"))
	if err != nil {
		return 0, 0, 0, err
	}
	x, err := strconv.Atoi(c.Params("x"))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := strconv.Atoi(c.Params("y"))
	if err != nil {
		return 0, 0, 0, err
	}
	return z, x, y, nil
}

// addWaiter registers a request waiting for the tile's render pass.
func (m *MapInstance) addWaiter(id tiles.ID, ch chan *tiles.Tile) {
	m.waitersMu.Lock()
	m.waiters[id] = append(m.waiters[id], ch)
	m.waitersMu.Unlock()
}

// notifyWaiters hands the finished tile to every request waiting on it.
func (m *MapInstance) notifyWaiters(id tiles.ID, t *tiles.Tile) {
	m.waitersMu.Lock()
	chans := m.waiters[id]
	delete(m.waiters, id)
	m.waitersMu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- t:
		default: // waiter already timed out
		}
	}
}

// dropWaiter removes one request's waiter without touching the pass
// itself; other requests may still depend on it.
func (m *MapInstance) dropWaiter(id tiles.ID, ch chan *tiles.Tile) {
	m.waitersMu.Lock()
	defer m.waitersMu.Unlock()
	list := m.waiters[id]
	for i, c := range list {
		if c == ch {
			m.waiters[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.waiters[id]) == 0 {
		delete(m.waiters, id)
	}
}

// RenderedTile loads, renders and encodes one tile, synchronously. One
// render pass serves every request that arrives while it is in flight:
// each request registers a waiter before asking for the pass, and
// whichever request started it notifies them all when it lands.
func (m *MapInstance) RenderedTile(id tiles.ID) ([]byte, error) {
	rendered := make(chan *tiles.Tile, 1)

	m.Orchestrator.Load(id, func(t *tiles.Tile) {
		m.addWaiter(id, rendered)
		if m.Renderer.RenderTile(t, func(t *tiles.Tile) { m.notifyWaiters(id, t) }) {
			return
		}
		// The pass did not start. A finished tile is served as-is; a pass
		// started by another request notifies every waiter when it lands.
		if t.Rendered() {
			m.notifyWaiters(id, t)
		}
	})

	timeout := time.Duration(Config.RenderTimeout) * time.Second
	var t *tiles.Tile
	select {
	case t = <-rendered:
	case <-time.After(timeout):
		m.dropWaiter(id, rendered)
		return nil, fmt.Errorf("tile %s render timed out after %s", id, timeout)
	}
	defer m.Orchestrator.Release(id)

	surface := t.Surface()
	if surface == nil {
		return nil, fmt.Errorf("tile %s produced no surface", id)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, surface); err != nil {
		return nil, fmt.Errorf("failed to encode tile %s: %w", id, err)
	}
	return buf.Bytes(), nil
}

// RenderedTileHandler serves GET /rendered-tiles/:map/:z/:x/:y.png.
func RenderedTileHandler(c *fiber.Ctx) error {
	inst, ok := LookupMap(c.Params("map"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "Map not found",
		})
	}
	z, x, y, err := parseTileParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid tile coordinates",
		})
	}

	id := tiles.ID{Z: z, X: x, Y: y}
	cacheKey := fmt.Sprintf("%s/%s@%d", inst.ID, id, inst.Renderer.Version())

	if cached, found := tileCache.Get(cacheKey); found {
		if data, ok := cached.([]byte); ok {
			c.Set("Content-Type", "image/png")
			return c.Send(data)
		}
	}

	data, err := inst.RenderedTile(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Error rendering tile",
			"error":   err.Error(),
		})
	}

	ttl := time.Duration(Config.CacheTTL) * time.Minute
	tileCache.SetWithTTL(cacheKey, data, int64(len(data)), ttl)

	c.Set("Content-Type", "image/png")
	return c.Send(data)
}

// StyleHandler serves GET /rendered-tiles/:map/style.json.
func StyleHandler(c *fiber.Ctx) error {
	inst, ok := LookupMap(c.Params("map"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "Map not found",
		})
	}
	return c.JSON(inst.Style)
}

type groupVisibilityRequest struct {
	Group   string `json:"group"`
	Visible *bool  `json:"visible"`
}

// GroupVisibilityHandler serves POST /rendered-tiles/:map/groups. Hiding
// a group only affects passes started afterwards; cached tiles are
// already composited, so the cache entry version is bumped by
// re-registering the style when that matters.
func GroupVisibilityHandler(c *fiber.Ctx) error {
	inst, ok := LookupMap(c.Params("map"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "Map not found",
		})
	}

	var req groupVisibilityRequest
	if err := c.BodyParser(&req); err != nil || req.Group == "" || req.Visible == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "group and visible are required",
		})
	}
	inst.Renderer.SetGroupVisible(req.Group, *req.Visible)
	return c.JSON(fiber.Map{"status": "ok"})
}
