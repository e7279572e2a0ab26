package editor

import (
	"errors"
	"sync"
	"time"
)

// DefaultDebounce is the quiet window used for free-text field commits.
const DefaultDebounce = time.Second

// Debouncer batches rapid writes per key. Only the last value written
// within the quiet window is committed; a newer value restarts the window.
type Debouncer[K comparable, V any] struct {
	window time.Duration
	commit func(K, V) error
	onErr  func(K, error)

	mu      sync.Mutex
	entries map[K]*pendingValue[V]
}

type pendingValue[V any] struct {
	value V
	timer *time.Timer
}

// NewDebouncer returns a debouncer that calls commit once per key after
// window of inactivity. onErr, if non-nil, receives commit errors from
// timer-driven commits.
func NewDebouncer[K comparable, V any](window time.Duration, commit func(K, V) error, onErr func(K, error)) *Debouncer[K, V] {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer[K, V]{
		window:  window,
		commit:  commit,
		onErr:   onErr,
		entries: map[K]*pendingValue[V]{},
	}
}

// Set records v as the latest value for k and (re)starts its timer.
func (d *Debouncer[K, V]) Set(k K, v V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[k]; ok {
		e.value = v
		e.timer.Reset(d.window)
		return
	}
	e := &pendingValue[V]{value: v}
	e.timer = time.AfterFunc(d.window, func() { d.fire(k, e) })
	d.entries[k] = e
}

// Pending returns the uncommitted value of k, if any.
func (d *Debouncer[K, V]) Pending(k K) (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[k]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Len returns the number of keys waiting to be committed.
func (d *Debouncer[K, V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Each calls fn for every pending key.
func (d *Debouncer[K, V]) Each(fn func(K, V)) {
	d.mu.Lock()
	snapshot := make(map[K]V, len(d.entries))
	for k, e := range d.entries {
		snapshot[k] = e.value
	}
	d.mu.Unlock()
	for k, v := range snapshot {
		fn(k, v)
	}
}

func (d *Debouncer[K, V]) fire(k K, e *pendingValue[V]) {
	d.mu.Lock()
	if d.entries[k] != e {
		d.mu.Unlock()
		return
	}
	delete(d.entries, k)
	v := e.value
	d.mu.Unlock()

	if err := d.commit(k, v); err != nil && d.onErr != nil {
		d.onErr(k, err)
	}
}

// Flush commits every pending value immediately.
func (d *Debouncer[K, V]) Flush() error {
	d.mu.Lock()
	pending := d.entries
	d.entries = map[K]*pendingValue[V]{}
	for _, e := range pending {
		e.timer.Stop()
	}
	d.mu.Unlock()

	var errs []error
	for k, e := range pending {
		if err := d.commit(k, e.value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cancel drops a pending value without committing it.
func (d *Debouncer[K, V]) Cancel(k K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[k]; ok {
		e.timer.Stop()
		delete(d.entries, k)
	}
}

// CancelAll drops every pending value.
func (d *Debouncer[K, V]) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		e.timer.Stop()
	}
	d.entries = map[K]*pendingValue[V]{}
}
