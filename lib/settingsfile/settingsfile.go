// Package settingsfile applies monitoring settings from a JSON file and
// re-applies them whenever the file is written.
package settingsfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fiffu/postwatch/lib/models"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// File is the on-disk layout. Omitted fields leave the current value alone.
type File struct {
	Accounts        []string                `json:"accounts,omitempty"`
	IntervalSeconds int64                   `json:"intervalSeconds,omitempty"`
	Policies        []models.DeliveryPolicy `json:"policies,omitempty"`
}

type Applier interface {
	ApplySettingsFile(ctx context.Context, f *File) error
}

func Read(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &File{}
	if err := json.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// Editors often write a file in several steps; wait for the writes to settle.
const settleDelay = 200 * time.Millisecond

type Watcher struct {
	path    string
	applier Applier
	log     *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewWatcher(path string, applier Applier, log *zap.Logger) *Watcher {
	return &Watcher{path: path, applier: applier, log: log}
}

// Start applies the file once and then watches its directory, so the file
// being replaced by a rename is noticed too.
func (w *Watcher) Start(ctx context.Context) error {
	w.apply(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	w.watcher = fw
	w.done = make(chan struct{})

	go w.run()
	w.log.Sugar().Infow("Watching settings file", "path", w.path)
	return nil
}

func (w *Watcher) Stop(ctx context.Context) error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	target := filepath.Clean(w.path)
	var settle <-chan time.Time

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(settleDelay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Sugar().Warnw("Settings file watcher error", "err", err)

		case <-settle:
			settle = nil
			w.apply(context.Background())
		}
	}
}

func (w *Watcher) apply(ctx context.Context) {
	f, err := Read(w.path)
	if err != nil {
		w.log.Sugar().Warnw("Ignoring unreadable settings file", "path", w.path, "err", err)
		return
	}
	if err := w.applier.ApplySettingsFile(ctx, f); err != nil {
		w.log.Sugar().Warnw("Ignoring invalid settings file", "path", w.path, "err", err)
		return
	}
	w.log.Sugar().Infow("Applied settings file", "path", w.path)
}
