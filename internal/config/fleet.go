package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FleetEntry is one roster line: a car name and the floor range it
// covers. The roster is informational: the controller's dispatch answers
// CALL frames only from cars that have registered live, never from it.
type FleetEntry struct {
	Name    string `yaml:"name"`
	Lowest  string `yaml:"lowest"`
	Highest string `yaml:"highest"`
}

// Fleet is the parsed roster.
type Fleet struct {
	Cars []FleetEntry `yaml:"cars"`
}

// Snapshot pairs a Fleet with a monotonically increasing epoch, so
// listeners can detect whether a reload actually changed anything.
type Snapshot struct {
	Fleet Fleet
	Epoch uint64
}

func loadFleetFile(path string) (Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("config: read fleet roster %s: %w", path, err)
	}
	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fleet{}, fmt.Errorf("config: parse fleet roster %s: %w", path, err)
	}
	for _, c := range f.Cars {
		if _, err := floor.Parse(c.Lowest); err != nil {
			return Fleet{}, fmt.Errorf("config: car %s lowest floor: %w", c.Name, err)
		}
		if _, err := floor.Parse(c.Highest); err != nil {
			return Fleet{}, fmt.Errorf("config: car %s highest floor: %w", c.Name, err)
		}
	}
	return f, nil
}

// Holder holds the controller's fleet roster with atomic hot reload,
// mirroring a load/validate/atomic-swap config holder: a bad file on
// reload never displaces a good one already in memory.
type Holder struct {
	path     string
	snapshot atomic.Pointer[Snapshot]
	epoch    atomic.Uint64
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewHolder loads path once and returns a Holder serving it. path may be
// empty, in which case the holder serves an always-empty fleet.
func NewHolder(path string) (*Holder, error) {
	h := &Holder{
		path:   path,
		logger: xlog.Derive(func(c *zerolog.Context) { *c = c.Str("component", "fleet_config") }),
	}
	if path == "" {
		h.store(Fleet{})
		return h, nil
	}
	f, err := loadFleetFile(path)
	if err != nil {
		return nil, err
	}
	h.store(f)
	return h, nil
}

func (h *Holder) store(f Fleet) {
	snap := &Snapshot{Fleet: f, Epoch: h.epoch.Add(1)}
	h.snapshot.Store(snap)
}

// Current returns the fleet roster currently in effect.
func (h *Holder) Current() Fleet {
	snap := h.snapshot.Load()
	if snap == nil {
		return Fleet{}
	}
	return snap.Fleet
}

// Reload re-reads path and swaps it in if (and only if) it parses and
// validates cleanly.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	f, err := loadFleetFile(h.path)
	if err != nil {
		h.logger.Warn().Err(err).Str(xlog.FieldEvent, "fleet_reload_failed").Msg("keeping previous roster")
		return err
	}
	h.store(f)
	h.logger.Info().Str(xlog.FieldEvent, "fleet_reload").Int("cars", len(f.Cars)).Msg("fleet roster reloaded")
	return nil
}

const debounceInterval = 200 * time.Millisecond

// StartWatcher watches the roster file's directory for writes and
// reloads on a debounce timer. No-op if path is empty.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create fleet watcher: %w", err)
	}
	dir := filepath.Dir(h.path)
	base := filepath.Base(h.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("config: watch fleet dir: %w", err)
	}
	h.watcher = w
	go h.watchLoop(ctx, base)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, base string) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = h.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() { _ = h.Reload() })
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Str(xlog.FieldEvent, "fleet_watch_error").Msg("fleet watcher error")
		}
	}
}
