package worker

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
)

type task struct {
	callback Callback
	counts   map[string]int
	got      map[string]int
	result   map[string]*geojson.FeatureCollection
}

// Dispatcher matches background-unit replies to the callers that started
// the tasks. All bookkeeping lives on the dispatcher side; the unit sees
// only message payloads.
type Dispatcher struct {
	mu      sync.Mutex
	nextID  TaskID
	pending map[TaskID]*task
	active  int

	requests  chan request
	responses chan response
	done      chan struct{}
	stopOnce  sync.Once
}

// NewDispatcher starts a background unit around the loader and the
// response pump that feeds callbacks. batchSize bounds how many features
// travel in one data message; values below 1 fall back to 64.
func NewDispatcher(loader Loader, batchSize int) *Dispatcher {
	if batchSize < 1 {
		batchSize = 64
	}
	d := &Dispatcher{
		pending:   make(map[TaskID]*task),
		requests:  make(chan request, 64),
		responses: make(chan response, 16),
		done:      make(chan struct{}),
	}
	u := &unit{
		loader:    loader,
		batch:     batchSize,
		requests:  d.requests,
		responses: d.responses,
		done:      d.done,
		streams:   make(map[TaskID]*stream),
	}
	go u.loop()
	go d.pump()
	return d
}

// Stop shuts down the background unit and response pump. Pending tasks
// never call back.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// StartTask registers a pending task and sends the parse request.
func (d *Dispatcher) StartTask(job Job, cb Callback) TaskID {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.pending[id] = &task{callback: cb}
	d.active++
	d.mu.Unlock()

	d.send(request{id: id, kind: kindStart, job: job})
	return id
}

// CancelTask forgets a pending task immediately and tells the unit to
// abandon it. Canceling an unknown or already-finished id is a no-op.
// A reply that was already in flight is discarded by the pump.
func (d *Dispatcher) CancelTask(id TaskID) {
	d.mu.Lock()
	_, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
		d.active--
	}
	d.mu.Unlock()
	if ok {
		d.send(request{id: id, kind: kindCancel})
	}
}

// ActiveTasks reports how many tasks are pending.
func (d *Dispatcher) ActiveTasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// send never blocks the caller: the unit drains requests between batches,
// but a full buffer must not stall the render side.
func (d *Dispatcher) send(req request) {
	select {
	case d.requests <- req:
	default:
		go func() {
			select {
			case d.requests <- req:
			case <-d.done:
			}
		}()
	}
}

func (d *Dispatcher) pump() {
	for {
		select {
		case <-d.done:
			return
		case resp := <-d.responses:
			d.handle(resp)
		}
	}
}

// handle processes one response envelope. Stale ids (canceled or unknown)
// get a cancel ack and no callback.
func (d *Dispatcher) handle(resp response) {
	d.mu.Lock()
	t, ok := d.pending[resp.id]
	d.mu.Unlock()
	if !ok {
		d.send(request{id: resp.id, kind: kindCancel})
		return
	}

	switch resp.kind {
	case kindError:
		d.finish(resp.id, t, nil, resp.err)

	case kindHeader:
		t.counts = resp.counts
		t.got = make(map[string]int, len(resp.counts))
		t.result = make(map[string]*geojson.FeatureCollection, len(resp.counts))
		for key := range resp.counts {
			t.result[key] = geojson.NewFeatureCollection()
		}
		d.send(request{id: resp.id, kind: kindContinue})

	case kindData:
		if t.result == nil {
			d.finish(resp.id, t, nil, fmt.Errorf("%w: data before header", ErrProtocol))
			return
		}
		fc, ok := t.result[resp.key]
		if !ok {
			fc = geojson.NewFeatureCollection()
			t.result[resp.key] = fc
		}
		fc.Features = append(fc.Features, resp.features...)
		t.got[resp.key] += len(resp.features)
		d.send(request{id: resp.id, kind: kindContinue})

	case kindDone:
		if err := validateCounts(t.counts, t.got); err != nil {
			d.finish(resp.id, t, nil, err)
			return
		}
		d.finish(resp.id, t, t.result, nil)

	default:
		d.finish(resp.id, t, nil, fmt.Errorf("%w: unrecognized message kind %q", ErrProtocol, resp.kind))
	}
}

// finish removes the record and decrements the active counter exactly
// once, then delivers the outcome.
func (d *Dispatcher) finish(id TaskID, t *task, result map[string]*geojson.FeatureCollection, err error) {
	d.mu.Lock()
	if _, ok := d.pending[id]; ok {
		delete(d.pending, id)
		d.active--
	}
	d.mu.Unlock()
	if t.callback != nil {
		t.callback(result, err)
	}
}

func validateCounts(declared, got map[string]int) error {
	for key, want := range declared {
		if got[key] != want {
			return fmt.Errorf("%w: field %q declared %d features, received %d", ErrCountMismatch, key, want, got[key])
		}
	}
	for key, n := range got {
		if _, ok := declared[key]; !ok && n > 0 {
			return fmt.Errorf("%w: field %q received %d undeclared features", ErrCountMismatch, key, n)
		}
	}
	return nil
}
