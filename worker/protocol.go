// Package worker offloads tile parsing to a background execution unit.
// Producers start tasks and get their reply matched back by task id; the
// unit streams parsed features in bounded batches and sends nothing
// further until the dispatcher acknowledges with a continue message.
package worker

import (
	"errors"

	"github.com/paulmach/orb/geojson"
)

// TaskID identifies one in-flight parse task. IDs increase monotonically
// for the lifetime of a Dispatcher.
type TaskID int64

// Message kinds of the request/response envelopes.
const (
	kindStart    = "start"
	kindCancel   = "cancel"
	kindContinue = "continue"
	kindError    = "error"
	kindHeader   = "header"
	kindData     = "data"
	kindDone     = "done"
)

var (
	// ErrProtocol marks an unrecognized response message kind.
	ErrProtocol = errors.New("worker: protocol error")
	// ErrCountMismatch marks a done message whose accumulated feature
	// counts do not match the counts declared in the header.
	ErrCountMismatch = errors.New("worker: feature count mismatch")
)

// Job describes one vector tile parse request.
type Job struct {
	Source string // source name from the style document
	TileID string // "z/x/y"
	Z      int
	X      int
	Y      int
	URL    string // expanded tile URL, empty for database sources
}

// Loader fetches and parses one tile's worth of source data, grouped by
// source-layer name. It runs on the background unit's goroutine.
type Loader interface {
	LoadTile(job Job) (map[string][]*geojson.Feature, error)
}

// request travels dispatcher -> unit.
type request struct {
	id   TaskID
	kind string // start, cancel, continue
	job  Job
}

// response travels unit -> dispatcher.
type response struct {
	id       TaskID
	kind     string // error, header, data, done
	key      string
	counts   map[string]int
	features []*geojson.Feature
	err      error
}

// Callback receives a finished task's result. Exactly one of result and
// err is set; canceled tasks never call back.
type Callback func(result map[string]*geojson.FeatureCollection, err error)
