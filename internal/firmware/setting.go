// Package firmware models the IdeaPad firmware settings, their value domains
// and the parsing of raw probe output into validated state.
package firmware

import (
	"fmt"
	"strconv"
	"strings"
)

// Setting identifies one of the firmware settings ideapadd manages.
type Setting uint8

// Settings in their fixed order. Reads, writes and reports always follow it.
const (
	ConservationMode Setting = iota
	RapidCharge
	PerformanceMode
)

// SettingCount is the number of managed settings.
const SettingCount = 3

// Value is a setting value code. Its meaning depends on the owning Setting.
type Value uint8

// Values for the on/off settings (ConservationMode, RapidCharge).
const (
	Off Value = 0
	On  Value = 1
)

// Values for PerformanceMode.
const (
	IntelligentCooling Value = 0
	ExtremePerformance Value = 1
	BatterySaving      Value = 2
)

type valueInfo struct {
	value Value
	name  string
	label string
}

type settingInfo struct {
	key    string
	title  string
	domain []valueInfo
}

var settings = [SettingCount]settingInfo{
	ConservationMode: {
		key:   "conservation_mode",
		title: "Battery Conservation Mode",
		domain: []valueInfo{
			{Off, "off", "OFF"},
			{On, "on", "ON"},
		},
	},
	RapidCharge: {
		key:   "rapid_charge",
		title: "Rapid Charge",
		domain: []valueInfo{
			{Off, "off", "OFF"},
			{On, "on", "ON"},
		},
	},
	PerformanceMode: {
		key:   "performance_mode",
		title: "System Performance Mode",
		domain: []valueInfo{
			{IntelligentCooling, "intelligent_cooling", "Intelligent Cooling"},
			{ExtremePerformance, "extreme_performance", "Extreme Performance"},
			{BatterySaving, "battery_saving", "Battery Saving"},
		},
	},
}

// All returns every setting in fixed order.
func All() []Setting {
	return []Setting{ConservationMode, RapidCharge, PerformanceMode}
}

// Valid reports whether s is a known setting.
func (s Setting) Valid() bool {
	return s < SettingCount
}

// String returns the setting key, e.g. "rapid_charge".
func (s Setting) String() string {
	if !s.Valid() {
		return fmt.Sprintf("setting(%d)", uint8(s))
	}
	return settings[s].key
}

// Title returns the human readable name, e.g. "Rapid Charge".
func (s Setting) Title() string {
	if !s.Valid() {
		return s.String()
	}
	return settings[s].title
}

// Domain returns the valid values of s in ascending code order.
func (s Setting) Domain() []Value {
	if !s.Valid() {
		return nil
	}
	out := make([]Value, 0, len(settings[s].domain))
	for _, v := range settings[s].domain {
		out = append(out, v.value)
	}
	return out
}

// Contains reports whether v belongs to the domain of s.
func (s Setting) Contains(v Value) bool {
	_, ok := s.lookup(v)
	return ok
}

// ValueName returns the machine name of v for this setting ("on", "battery_saving").
func (s Setting) ValueName(v Value) string {
	if info, ok := s.lookup(v); ok {
		return info.name
	}
	return strconv.Itoa(int(v))
}

// ValueLabel returns the display label of v for this setting ("ON", "Battery Saving").
func (s Setting) ValueLabel(v Value) string {
	if info, ok := s.lookup(v); ok {
		return info.label
	}
	return strconv.Itoa(int(v))
}

// ValueNames returns the machine names of the domain in code order.
func (s Setting) ValueNames() []string {
	if !s.Valid() {
		return nil
	}
	names := make([]string, 0, len(settings[s].domain))
	for _, v := range settings[s].domain {
		names = append(names, v.name)
	}
	return names
}

// ParseValue resolves a user supplied value for this setting. It accepts the
// machine name, the display label or the decimal code, case-insensitively.
func (s Setting) ParseValue(text string) (Value, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("unknown setting %d", uint8(s))
	}
	norm := normalizeName(text)
	for _, v := range settings[s].domain {
		if norm == v.name || norm == normalizeName(v.label) {
			return v.value, nil
		}
	}
	if code, err := strconv.ParseUint(strings.TrimSpace(text), 10, 8); err == nil {
		if s.Contains(Value(code)) {
			return Value(code), nil
		}
	}
	return 0, fmt.Errorf("invalid value %q for %s (expected one of %s)",
		text, s, strings.Join(s.ValueNames(), ", "))
}

// ParseSetting resolves a setting key or title.
func ParseSetting(text string) (Setting, error) {
	norm := normalizeName(text)
	for _, s := range All() {
		if norm == settings[s].key || norm == normalizeName(settings[s].title) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown setting %q", text)
}

func (s Setting) lookup(v Value) (valueInfo, bool) {
	if !s.Valid() {
		return valueInfo{}, false
	}
	for _, info := range settings[s].domain {
		if info.value == v {
			return info, true
		}
	}
	return valueInfo{}, false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
