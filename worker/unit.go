package worker

import (
	"sort"

	"github.com/paulmach/orb/geojson"
)

// stream is the unit-side leftover of a loaded tile: parsed features not
// yet pulled by the dispatcher.
type stream struct {
	data map[string][]*geojson.Feature
	next []string // keys with features still to send, in sorted order
	off  int      // offset into data[next[0]]
}

// unit is the background execution unit. It owns no shared state: every
// exchange with the dispatcher is a message on one of the two channels,
// and it sends data only when pulled by a continue ack.
type unit struct {
	loader    Loader
	batch     int
	requests  <-chan request
	responses chan<- response
	done      <-chan struct{}
	streams   map[TaskID]*stream
}

func (u *unit) loop() {
	for {
		select {
		case <-u.done:
			return
		case req := <-u.requests:
			switch req.kind {
			case kindStart:
				u.start(req)
			case kindContinue:
				u.pull(req.id)
			case kindCancel:
				delete(u.streams, req.id)
			}
		}
	}
}

func (u *unit) start(req request) {
	data, err := u.loader.LoadTile(req.job)
	if err != nil {
		u.reply(response{id: req.id, kind: kindError, err: err})
		return
	}

	counts := make(map[string]int, len(data))
	next := make([]string, 0, len(data))
	for key, features := range data {
		counts[key] = len(features)
		if len(features) > 0 {
			next = append(next, key)
		}
	}
	sort.Strings(next)

	u.streams[req.id] = &stream{data: data, next: next}
	u.reply(response{id: req.id, kind: kindHeader, counts: counts})
}

// pull sends the next data batch for a task, or done once exhausted.
// Continue acks for ids the unit no longer tracks are ignored.
func (u *unit) pull(id TaskID) {
	str, ok := u.streams[id]
	if !ok {
		return
	}
	if len(str.next) == 0 {
		delete(u.streams, id)
		u.reply(response{id: id, kind: kindDone})
		return
	}

	key := str.next[0]
	features := str.data[key]
	end := str.off + u.batch
	if end > len(features) {
		end = len(features)
	}
	batch := features[str.off:end]
	str.off = end
	if str.off >= len(features) {
		str.next = str.next[1:]
		str.off = 0
	}
	u.reply(response{id: id, kind: kindData, key: key, features: batch})
}

func (u *unit) reply(resp response) {
	select {
	case u.responses <- resp:
	case <-u.done:
	}
}
