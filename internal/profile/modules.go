package profile

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/ideapadd/internal/firmware"
)

// definitions collects what a script declares while it runs
type definitions struct {
	profiles map[string]Profile
	order    []string
	onPower  *lua.LFunction
}

func newDefinitions() *definitions {
	return &definitions{profiles: make(map[string]Profile)}
}

// ideapadLoader builds the "ideapad" module bound to defs
func ideapadLoader(defs *definitions) lua.LGFunction {
	return func(L *lua.LState) int {
		mod := L.NewTable()
		L.SetField(mod, "profile", L.NewFunction(defs.profile))
		L.SetField(mod, "on_power", L.NewFunction(defs.setOnPower))
		L.SetField(mod, "settings", L.NewFunction(settings))
		L.Push(mod)
		return 1
	}
}

// ideapad.profile(name, {setting = value, ...})
func (d *definitions) profile(L *lua.LState) int {
	name := L.CheckString(1)
	tbl := L.CheckTable(2)

	raw := make(map[string]string)
	var bad string
	tbl.ForEach(func(k, v lua.LValue) {
		s, ok := scalarString(v)
		if !ok && bad == "" {
			bad = lua.LVAsString(k)
			return
		}
		raw[lua.LVAsString(k)] = s
	})
	if bad != "" {
		L.ArgError(2, "value of "+bad+" must be a string or number")
		return 0
	}

	p, err := newProfile(name, raw)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	if _, exists := d.profiles[name]; !exists {
		d.order = append(d.order, name)
	}
	d.profiles[name] = p
	return 0
}

// ideapad.on_power(function(on_battery) return "profile" end)
func (d *definitions) setOnPower(L *lua.LState) int {
	d.onPower = L.CheckFunction(1)
	return 0
}

// ideapad.settings() returns {setting = {value names...}}
func settings(L *lua.LState) int {
	out := L.NewTable()
	for _, s := range firmware.All() {
		names := L.NewTable()
		for _, n := range s.ValueNames() {
			names.Append(lua.LString(n))
		}
		out.RawSetString(s.String(), names)
	}
	L.Push(out)
	return 1
}

// logLoader builds the "log" module routed to zerolog
func logLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(logAt(zerolog.DebugLevel)))
	L.SetField(mod, "info", L.NewFunction(logAt(zerolog.InfoLevel)))
	L.SetField(mod, "warn", L.NewFunction(logAt(zerolog.WarnLevel)))
	L.SetField(mod, "error", L.NewFunction(logAt(zerolog.ErrorLevel)))
	L.Push(mod)
	return 1
}

func logAt(level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		event := log.WithLevel(level).Str("source", "lua")
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			tbl.ForEach(func(k, v lua.LValue) {
				event = event.Interface(lua.LVAsString(k), luaToGo(v))
			})
		}
		event.Msg(msg)
		return 0
	}
}
