package controllers

import (
	"bytes"
	"testing"
	"time"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/tiles"
)

func backgroundOnlyStyle() *models.Style {
	return &models.Style{Layers: []models.Layer{{
		ID:    "bg",
		Type:  "background",
		Paint: map[string]interface{}{"background-color": "#336699"},
	}}}
}

func waitForWaiters(t *testing.T, m *MapInstance, id tiles.ID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.waitersMu.Lock()
		got := len(m.waiters[id])
		m.waitersMu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never saw %d waiters for tile %s", n, id)
}

func TestConcurrentRequestsShareOnePass(t *testing.T) {
	inst, err := RegisterMap("concurrent", backgroundOnlyStyle(), MapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer UnregisterMap("concurrent")

	// Hold the scheduler on an unrelated entry so the first request's
	// pass stays queued while the second request arrives.
	gate := make(chan struct{})
	inst.Scheduler.Defer("gate", func() { <-gate })

	id := tiles.ID{Z: 1, X: 0, Y: 0}
	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			data, err := inst.RenderedTile(id)
			results <- result{data, err}
		}()
	}

	waitForWaiters(t, inst, id, 2)
	close(gate)

	var got []result
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			got = append(got, r)
		case <-time.After(5 * time.Second):
			t.Fatal("request did not finish")
		}
	}

	for i, r := range got {
		if r.err != nil {
			t.Fatalf("request %d: %v", i, r.err)
		}
		if len(r.data) == 0 {
			t.Fatalf("request %d returned no image data", i)
		}
	}
	if !bytes.Equal(got[0].data, got[1].data) {
		t.Error("concurrent requests returned different tiles")
	}
}

func TestRequestAfterRenderServesFinishedTile(t *testing.T) {
	inst, err := RegisterMap("sequential", backgroundOnlyStyle(), MapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer UnregisterMap("sequential")

	id := tiles.ID{Z: 2, X: 1, Y: 1}
	first, err := inst.RenderedTile(id)
	if err != nil {
		t.Fatal(err)
	}

	// The finished tile was released; a fresh request re-renders and must
	// not hang on the previous pass.
	second, err := inst.RenderedTile(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-rendering the same tile produced a different image")
	}
}
