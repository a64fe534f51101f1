// Package reconcile keeps the observed firmware state and turns requested
// values into the minimal set of privileged writes.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/firmware"
)

var timeNow = time.Now

// Session is the state observed by one reload. It is never mutated after
// construction; a reload builds a new Session.
type Session struct {
	states   [firmware.SettingCount]firmware.State
	loadedAt time.Time
}

// NewSession builds a session from explicit states. Settings missing from
// states are Unknown.
func NewSession(states map[firmware.Setting]firmware.State) *Session {
	s := &Session{loadedAt: timeNow()}
	for setting, st := range states {
		if setting.Valid() {
			s.states[setting] = st
		}
	}
	return s
}

// Get returns the state of a setting. Invalid settings are Unknown.
func (s *Session) Get(setting firmware.Setting) firmware.State {
	if s == nil || !setting.Valid() {
		return firmware.Unknown("", firmware.ReasonUnparseable)
	}
	return s.states[setting]
}

// LoadedAt returns when the session was read from hardware.
func (s *Session) LoadedAt() time.Time {
	return s.loadedAt
}

// Equal compares the observed states, ignoring load time.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	for _, setting := range firmware.All() {
		if !s.states[setting].Equal(other.states[setting]) {
			return false
		}
	}
	return true
}

// Baseline returns the known values as a request, the starting point for
// building a request that only changes some settings.
func (s *Session) Baseline() Request {
	req := make(Request)
	for _, setting := range firmware.All() {
		if v, ok := s.Get(setting).Value(); ok {
			req[setting] = v
		}
	}
	return req
}

// Request maps settings to requested values. Absent settings are left alone.
type Request map[firmware.Setting]firmware.Value

// ParseRequest builds a request from setting keys and value names.
func ParseRequest(values map[string]string) (Request, error) {
	req := make(Request, len(values))
	for key, val := range values {
		setting, err := firmware.ParseSetting(key)
		if err != nil {
			return nil, err
		}
		v, err := setting.ParseValue(val)
		if err != nil {
			return nil, err
		}
		req[setting] = v
	}
	return req, nil
}

// Names returns the request as setting keys and value names.
func (r Request) Names() map[string]string {
	out := make(map[string]string, len(r))
	for setting, v := range r {
		out[setting.String()] = setting.ValueName(v)
	}
	return out
}

// Merge returns a copy of r overlaid with other.
func (r Request) Merge(other Request) Request {
	out := make(Request, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ApplyResult reports what ApplyWrites did.
type ApplyResult struct {
	Changed []firmware.Setting
	Failed  map[firmware.Setting]error
}

// SaveResult reports the outcome of a save: the planned writes, what was
// applied, what was skipped because its baseline was unknown, and the
// session read back afterwards.
type SaveResult struct {
	ID      string
	Source  string
	Writes  []command.Write
	Skipped []firmware.Setting
	ApplyResult
	Session *Session
}

// Summary renders the result as "No changes" or "Sets: A, B".
func (r SaveResult) Summary() string {
	if len(r.Changed) == 0 {
		return "No changes"
	}
	titles := make([]string, 0, len(r.Changed))
	for _, s := range r.Changed {
		titles = append(titles, s.Title())
	}
	return "Sets: " + strings.Join(titles, ", ")
}

// Err summarizes failed writes, or nil when every write ran.
func (r SaveResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.Failed))
	for _, s := range firmware.All() {
		if err, ok := r.Failed[s]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", s, err))
		}
	}
	return fmt.Errorf("write failed: %s", strings.Join(parts, "; "))
}

// Observer receives reconciliation events. Used for auditing and metrics.
type Observer interface {
	Reloaded(session *Session)
	WriteApplied(ev WriteEvent)
	WriteSkipped(ev SkipEvent)
}

// WriteEvent describes one executed write.
type WriteEvent struct {
	SaveID  string
	Source  string
	Write   command.Write
	Command string
	Err     error
}

// SkipEvent describes a requested setting that was not written because its
// baseline was unknown.
type SkipEvent struct {
	SaveID    string
	Source    string
	Setting   firmware.Setting
	Requested firmware.Value
	Baseline  firmware.State
}
