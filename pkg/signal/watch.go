// Copyright 2025 LumenFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the stability threshold collapsing bursts of
// writes to the signals file into a single query (spec.md §4.7, §5
// "Backpressure").
const DebounceDelay = 100 * time.Millisecond

// Watcher tails the signals file and emits Signal batches created
// since the last observed tick, debouncing rapid successive writes.
type Watcher struct {
	bus      *Bus
	watcher  *fsnotify.Watcher
	lastTick time.Time

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher returns a Watcher over bus, watching the directory
// containing its backing file (fsnotify watches directories, not
// bare files, so renames/recreates are still observed).
func NewWatcher(bus *Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{bus: bus, watcher: fw, lastTick: time.Now().UTC()}, nil
}

// Start watches the signals file's directory and invokes onBatch with
// newly created signals each time the debounce window settles. Start
// blocks until ctx is cancelled or an unrecoverable watcher error
// occurs.
func (w *Watcher) Start(ctx context.Context, dir string, onBatch func([]Signal)) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	defer w.watcher.Close()

	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleTick(pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("signal watcher error", "error", err)
		case <-pending:
			since := w.lastTick
			w.lastTick = time.Now().UTC()
			batch, err := w.bus.Load(LoadOptions{Since: since})
			if err != nil {
				slog.Warn("signal watch load failed", "error", err)
				continue
			}
			if len(batch) > 0 {
				onBatch(batch)
			}
		}
	}
}

func (w *Watcher) scheduleTick(pending chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(DebounceDelay, func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
