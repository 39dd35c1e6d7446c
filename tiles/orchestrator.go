package tiles

import (
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/worker"
	"github.com/paulmach/orb/geojson"
)

// RasterLoader fetches a raster source's tile image directly, outside the
// worker protocol.
type RasterLoader interface {
	LoadImage(url string) (image.Image, error)
}

// Orchestrator issues one load per declared source for each requested
// tile: vector sources through the worker dispatcher, raster sources via
// direct image loads. At most one orchestration is in flight per tile.
type Orchestrator struct {
	sources    map[string]models.Source
	dispatcher *worker.Dispatcher
	raster     RasterLoader

	mu       sync.Mutex
	inflight map[ID]*Tile
}

func NewOrchestrator(sources map[string]models.Source, dispatcher *worker.Dispatcher, raster RasterLoader) *Orchestrator {
	return &Orchestrator{
		sources:    sources,
		dispatcher: dispatcher,
		raster:     raster,
		inflight:   make(map[ID]*Tile),
	}
}

// Load returns the tile for id, starting loads for every declared source
// if none are in flight. The callback fires exactly once, when all
// sources have reported; a source error does not abort the others and is
// not a tile-level error. A second request while a load is in flight
// attaches to it; a request for a canceled tile starts a fresh one.
func (o *Orchestrator) Load(id ID, cb func(*Tile)) *Tile {
	o.mu.Lock()
	if t, ok := o.inflight[id]; ok && !t.Canceled() {
		attach := false
		t.mu.Lock()
		if !t.loaded {
			if cb != nil {
				t.callbacks = append(t.callbacks, cb)
			}
			attach = true
		}
		t.mu.Unlock()
		o.mu.Unlock()
		if !attach && cb != nil {
			cb(t)
		}
		return t
	}

	t := newTile(id)
	if cb != nil {
		t.callbacks = append(t.callbacks, cb)
	}
	t.remaining = len(o.sources)
	o.inflight[id] = t
	o.mu.Unlock()

	if len(o.sources) == 0 {
		t.mu.Lock()
		t.loaded = true
		callbacks := t.callbacks
		t.callbacks = nil
		t.mu.Unlock()
		for _, fn := range callbacks {
			fn(t)
		}
		return t
	}

	for name, src := range o.sources {
		switch src.Type {
		case "raster":
			go o.loadRaster(t, name, src)
		default:
			o.loadVector(t, name, src)
		}
	}
	return t
}

// Cancel flags the tile and forwards cancellation to every still-pending
// vector load. Already-issued raster loads are not interrupted; their
// late completions are ignored. The in-flight slot is released so a new
// request starts a fresh orchestration.
func (o *Orchestrator) Cancel(id ID) {
	o.mu.Lock()
	t, ok := o.inflight[id]
	if ok {
		delete(o.inflight, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	t.canceled = true
	tasks := make([]int64, 0, len(t.vectorTasks))
	for _, taskID := range t.vectorTasks {
		tasks = append(tasks, taskID)
	}
	t.vectorTasks = make(map[string]int64)
	t.callbacks = nil
	t.mu.Unlock()

	for _, taskID := range tasks {
		o.dispatcher.CancelTask(worker.TaskID(taskID))
	}
}

// Release drops a finished tile's in-flight slot so its memory can be
// reclaimed once the caller lets go of it.
func (o *Orchestrator) Release(id ID) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) loadVector(t *Tile, name string, src models.Source) {
	job := worker.Job{
		Source: name,
		TileID: t.ID.String(),
		Z:      t.ID.Z,
		X:      t.ID.X,
		Y:      t.ID.Y,
	}
	if len(src.Tiles) > 0 {
		job.URL = ExpandTileURL(src.Tiles[0], t.ID)
	}

	taskID := o.dispatcher.StartTask(job, func(result map[string]*geojson.FeatureCollection, err error) {
		if err != nil {
			log.Printf("tile %s source %s failed: %v", t.ID, name, err)
			t.sourceDone(name, &SourceData{Err: err})
			return
		}
		t.sourceDone(name, &SourceData{Collections: result})
	})

	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		o.dispatcher.CancelTask(taskID)
		return
	}
	t.vectorTasks[name] = int64(taskID)
	t.mu.Unlock()
}

func (o *Orchestrator) loadRaster(t *Tile, name string, src models.Source) {
	if o.raster == nil || len(src.Tiles) == 0 {
		t.sourceDone(name, &SourceData{Err: fmt.Errorf("raster source %s has no tile URL", name)})
		return
	}
	url := ExpandTileURL(src.Tiles[0], t.ID)
	img, err := o.raster.LoadImage(url)
	if err != nil {
		log.Printf("tile %s raster source %s failed: %v", t.ID, name, err)
		t.sourceDone(name, &SourceData{Err: err})
		return
	}
	t.sourceDone(name, &SourceData{Image: img})
}
