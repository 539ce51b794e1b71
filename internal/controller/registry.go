// Package controller implements the mocked dispatcher: it tracks which
// cars are currently registered and answers CALL requests with the
// first registered car whose range covers both floors, or UNAVAILABLE.
// The dispatch policy itself is explicitly out of scope for this tree;
// only the wire contract it participates in is real.
package controller

import (
	"fmt"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/frame"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// carSession is one connected car: its registered range and the framed
// connection the registry writes FLOOR commands back on.
type carSession struct {
	name string
	rng  floor.Range
	mu   sync.Mutex
	conn *frame.Conn
}

// Registry tracks live car sessions and answers dispatch queries.
// LiveRosterPath, if set, is rewritten atomically on every
// registration change so operators can inspect which cars are actually
// connected independent of the static fleet roster.
type Registry struct {
	mu             sync.RWMutex
	order          []string
	sessions       map[string]*carSession
	LiveRosterPath string
	Logger         zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*carSession),
		Logger:   xlog.Derive(func(c *zerolog.Context) { *c = c.Str("component", "dispatch") }),
	}
}

// Register records a newly connected car and its framed connection,
// replacing any prior session under the same name.
func (r *Registry) Register(name string, rng floor.Range, conn *frame.Conn) {
	r.mu.Lock()
	if _, exists := r.sessions[name]; !exists {
		r.order = append(r.order, name)
	}
	r.sessions[name] = &carSession{name: name, rng: rng, conn: conn}
	r.mu.Unlock()

	r.Logger.Info().Str(xlog.FieldCarName, name).Str(xlog.FieldEvent, "car_registered").Msg("car registered")
	r.writeLiveRoster()
}

// Unregister drops a car's session, e.g. on disconnect.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.Logger.Info().Str(xlog.FieldCarName, name).Str(xlog.FieldEvent, "car_unregistered").Msg("car disconnected")
	r.writeLiveRoster()
}

// Dispatch returns the first registered car (by registration order)
// whose range covers both src and dst, or ok=false if none qualifies.
func (r *Registry) Dispatch(src, dst int) (name string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.order {
		s := r.sessions[n]
		if s.rng.Contains(src) && s.rng.Contains(dst) {
			return n, true
		}
	}
	return "", false
}

// SendFloor writes a FLOOR command to the named car's live connection.
func (r *Registry) SendFloor(name string, dst int) error {
	r.mu.RLock()
	s, ok := r.sessions[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("controller: car %s is not connected", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SendFrame(frame.Message{"FLOOR", floor.Format(dst)})
}

type liveRosterEntry struct {
	Name    string `yaml:"name"`
	Lowest  string `yaml:"lowest"`
	Highest string `yaml:"highest"`
}

// writeLiveRoster persists the currently-connected fleet to
// LiveRosterPath using a write-to-temp-then-rename so readers never see
// a partially written file. Best-effort: failures are logged, not fatal.
func (r *Registry) writeLiveRoster() {
	if r.LiveRosterPath == "" {
		return
	}
	r.mu.RLock()
	entries := make([]liveRosterEntry, 0, len(r.order))
	for _, n := range r.order {
		s := r.sessions[n]
		entries = append(entries, liveRosterEntry{
			Name:    s.name,
			Lowest:  floor.Format(s.rng.Lowest),
			Highest: floor.Format(s.rng.Highest),
		})
	}
	r.mu.RUnlock()

	out, err := yaml.Marshal(struct {
		Cars []liveRosterEntry `yaml:"cars"`
	}{Cars: entries})
	if err != nil {
		r.Logger.Warn().Err(err).Str(xlog.FieldEvent, "live_roster_marshal_failed").Msg("failed to marshal live roster")
		return
	}
	if err := renameio.WriteFile(r.LiveRosterPath, out, 0o644); err != nil {
		r.Logger.Warn().Err(err).Str(xlog.FieldEvent, "live_roster_write_failed").Msg("failed to write live roster")
	}
}
