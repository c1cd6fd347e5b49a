package driver

import (
	"context"
	"sort"
	"time"
)

// Event is one hot-plug transition observed for a matching device.
type Event struct {
	Attach bool
	Info   DeviceInfo
}

// DefaultPollInterval is how often the Watcher rescans the bus when the
// driver cannot push change notifications.
const DefaultPollInterval = 250 * time.Millisecond

// Watcher turns the platform's enumeration primitive into an ordered stream
// of attach/detach events for devices matching one signature. It polls, and
// additionally wakes early when the driver implements Notifier.
type Watcher struct {
	drv      Driver
	sig      Signature
	interval time.Duration
}

// NewWatcher creates a watcher for devices matching sig. A non-positive
// interval falls back to DefaultPollInterval.
func NewWatcher(drv Driver, sig Signature, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{drv: drv, sig: sig, interval: interval}
}

// Run scans until ctx is cancelled, sending transitions to events. The first
// scan reports devices that were already present as attach events, so a
// device plugged in before monitoring started is not missed.
func (w *Watcher) Run(ctx context.Context, events chan<- Event) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var changes <-chan struct{}
	if n, ok := w.drv.(Notifier); ok {
		changes = n.Changes()
	}

	present := make(map[string]DeviceInfo)
	w.scan(ctx, present, events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-changes:
		}
		w.scan(ctx, present, events)
	}
}

// scan diffs the current bus state against present, emitting attaches before
// detaches. Enumeration errors leave the known state untouched; the next
// tick retries.
func (w *Watcher) scan(ctx context.Context, present map[string]DeviceInfo, events chan<- Event) {
	infos, err := w.drv.Enumerate()
	if err != nil {
		return
	}

	seen := make(map[string]DeviceInfo, len(infos))
	for _, info := range infos {
		if w.sig.Matches(info) {
			seen[info.Path] = info
		}
	}

	for _, path := range sortedPaths(seen) {
		if _, ok := present[path]; !ok {
			info := seen[path]
			present[path] = info
			if !emit(ctx, events, Event{Attach: true, Info: info}) {
				return
			}
		}
	}
	for _, path := range sortedPaths(present) {
		if _, ok := seen[path]; !ok {
			info := present[path]
			delete(present, path)
			if !emit(ctx, events, Event{Attach: false, Info: info}) {
				return
			}
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sortedPaths(m map[string]DeviceInfo) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
