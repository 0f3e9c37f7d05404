package watch

import (
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one coalesced file change. Op accumulates every operation seen
// for Path during the debounce window.
type Event struct {
	Path string
	Op   fsnotify.Op
	At   time.Time
}

// Gone reports whether the path was removed or renamed away at some point
// in the window.
func (e Event) Gone() bool {
	return e.Op.Has(fsnotify.Remove) || e.Op.Has(fsnotify.Rename)
}

// Debouncer coalesces events per path and flushes them once the window has
// passed without new events, or as soon as maxBatch distinct paths queue up.
type Debouncer struct {
	window   time.Duration
	maxBatch int
	events   map[string]Event
	mu       sync.Mutex
	timer    *time.Timer
	onFlush  func([]Event)
	stopped  bool
}

func NewDebouncer(window time.Duration, maxBatch int, onFlush func([]Event)) *Debouncer {
	if maxBatch <= 0 {
		maxBatch = 256
	}
	return &Debouncer{
		window:   window,
		maxBatch: maxBatch,
		events:   make(map[string]Event),
		onFlush:  onFlush,
	}
}

func (d *Debouncer) Add(event Event) {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if prev, ok := d.events[event.Path]; ok {
		event.Op |= prev.Op
	}
	d.events[event.Path] = event

	if len(d.events) >= d.maxBatch {
		d.flushLocked()
		return
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if !d.stopped {
			d.flushLocked()
		} else {
			d.mu.Unlock()
		}
	})

	d.mu.Unlock()
}

// flushLocked must be called with mu held; it releases it.
func (d *Debouncer) flushLocked() {
	events := make([]Event, 0, len(d.events))
	for _, event := range d.events {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	d.events = make(map[string]Event)

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.mu.Unlock()

	if len(events) > 0 && d.onFlush != nil {
		d.onFlush(events)
	}
}

// Stop flushes pending events and ignores any later Add
func (d *Debouncer) Stop() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if len(d.events) > 0 {
		d.flushLocked()
	} else {
		d.mu.Unlock()
	}
}
