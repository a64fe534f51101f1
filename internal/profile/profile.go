// Package profile loads named setting profiles from a Lua script.
package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// ErrNotFound is returned when a profile name is not defined by the script
var ErrNotFound = errors.New("profile not found")

// Profile is a named, validated set of setting values
type Profile struct {
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

// Request converts the profile into a reconcile request
func (p Profile) Request() (reconcile.Request, error) {
	req, err := reconcile.ParseRequest(p.Values)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return req, nil
}

// Keys returns the profile's setting keys in sorted order
func (p Profile) Keys() []string {
	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newProfile validates raw values and normalizes them to value names
func newProfile(name string, raw map[string]string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name must not be empty")
	}
	if len(raw) == 0 {
		return Profile{}, fmt.Errorf("profile %q sets nothing", name)
	}
	req, err := reconcile.ParseRequest(raw)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, err)
	}
	return Profile{Name: name, Values: req.Names()}, nil
}
