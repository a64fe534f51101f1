package reconcile

import (
	"time"

	"github.com/dokzlo13/ideapadd/internal/firmware"
)

// SettingView is the presentation of one setting's observed state.
type SettingView struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Known       bool   `json:"known"`
	Value       string `json:"value,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description"`
	Raw         string `json:"raw,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SessionView is the JSON form of a Session.
type SessionView struct {
	LoadedAt time.Time     `json:"loaded_at"`
	Settings []SettingView `json:"settings"`
}

// View renders the session in setting order.
func (s *Session) View() SessionView {
	view := SessionView{Settings: make([]SettingView, 0, firmware.SettingCount)}
	if s != nil {
		view.LoadedAt = s.loadedAt
	}
	for _, setting := range firmware.All() {
		st := s.Get(setting)
		sv := SettingView{
			Key:         setting.String(),
			Title:       setting.Title(),
			Description: st.Describe(setting),
		}
		if v, ok := st.Value(); ok {
			sv.Known = true
			sv.Value = setting.ValueName(v)
			sv.Label = setting.ValueLabel(v)
		} else {
			sv.Raw = st.Raw()
			sv.Reason = st.Reason().String()
		}
		view.Settings = append(view.Settings, sv)
	}
	return view
}

// ResultView is the JSON form of a SaveResult.
type ResultView struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Summary  string            `json:"summary"`
	Changed  []string          `json:"changed"`
	Skipped  []string          `json:"skipped,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
	Settings SessionView       `json:"settings"`
}

// View renders the result with setting keys.
func (r SaveResult) View() ResultView {
	view := ResultView{
		ID:       r.ID,
		Source:   r.Source,
		Summary:  r.Summary(),
		Changed:  make([]string, 0, len(r.Changed)),
		Settings: r.Session.View(),
	}
	for _, s := range r.Changed {
		view.Changed = append(view.Changed, s.String())
	}
	for _, s := range r.Skipped {
		view.Skipped = append(view.Skipped, s.String())
	}
	if len(r.Failed) > 0 {
		view.Failed = make(map[string]string, len(r.Failed))
		for s, err := range r.Failed {
			view.Failed[s.String()] = err.Error()
		}
	}
	return view
}
