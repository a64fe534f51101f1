package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// Runtime owns the Lua state of the profile script. A successful load swaps
// the state and profiles in wholesale; a failed load leaves them untouched.
type Runtime struct {
	mu   sync.Mutex // guards L; an LState is not safe for concurrent use
	L    *lua.LState
	defs *definitions
	path string
}

// NewRuntime creates a runtime with no profiles
func NewRuntime() *Runtime {
	return &Runtime{defs: newDefinitions()}
}

// LoadFile executes the script at path
func (r *Runtime) LoadFile(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")
	if err := r.load(func(L *lua.LState) error { return L.DoFile(path) }); err != nil {
		return err
	}
	r.mu.Lock()
	r.path = path
	count := len(r.defs.order)
	r.mu.Unlock()
	log.Info().Int("profiles", count).Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes script source
func (r *Runtime) LoadString(src string) error {
	return r.load(func(L *lua.LState) error { return L.DoString(src) })
}

// Reload re-executes the last file passed to LoadFile
func (r *Runtime) Reload() error {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()
	if path == "" {
		return fmt.Errorf("no script loaded")
	}
	return r.LoadFile(path)
}

// Path returns the loaded script path
func (r *Runtime) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Runtime) load(run func(L *lua.LState) error) error {
	L := lua.NewState()
	defs := newDefinitions()
	L.PreloadModule("ideapad", ideapadLoader(defs))
	L.PreloadModule("log", logLoader)

	if err := run(L); err != nil {
		L.Close()
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	r.mu.Lock()
	old := r.L
	r.L = L
	r.defs = defs
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Profiles returns the profiles in declaration order
func (r *Runtime) Profiles() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Profile, 0, len(r.defs.order))
	for _, name := range r.defs.order {
		out = append(out, r.defs.profiles[name])
	}
	return out
}

// Get looks a profile up by name
func (r *Runtime) Get(name string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.defs.profiles[name]
	return p, ok
}

// HasPowerHook reports whether the script registered ideapad.on_power
func (r *Runtime) HasPowerHook() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defs.onPower != nil
}

// ResolvePower calls the on_power hook and returns the profile it picks.
// An empty name means the script chose no profile.
func (r *Runtime) ResolvePower(ctx context.Context, onBattery bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defs.onPower == nil || r.L == nil {
		return "", nil
	}

	L := r.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	err := L.CallByParam(lua.P{Fn: r.defs.onPower, NRet: 1, Protect: true}, lua.LBool(onBattery))
	if err != nil {
		return "", fmt.Errorf("on_power hook failed: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	if ret == lua.LNil {
		return "", nil
	}
	name, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("on_power hook returned %s, want a profile name", ret.Type())
	}
	if _, exists := r.defs.profiles[string(name)]; !exists {
		return "", fmt.Errorf("on_power hook returned unknown profile %q", string(name))
	}
	return string(name), nil
}

// Close releases the Lua state
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.L != nil {
		r.L.Close()
		r.L = nil
	}
}
