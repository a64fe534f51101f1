package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/executor"
	"github.com/dokzlo13/ideapadd/internal/firmware"
)

// fakeExec answers read probes from a per-setting response table and records
// every command it is given.
type fakeExec struct {
	builder   *command.Builder
	responses map[firmware.Setting]string
	readErrs  map[firmware.Setting]error
	writeErrs map[firmware.Setting]error
	calls     []string
}

func newFakeExec(cmode, rapid, perf string) *fakeExec {
	return &fakeExec{
		builder: command.Default(),
		responses: map[firmware.Setting]string{
			firmware.ConservationMode: cmode,
			firmware.RapidCharge:      rapid,
			firmware.PerformanceMode:  perf,
		},
		readErrs:  map[firmware.Setting]error{},
		writeErrs: map[firmware.Setting]error{},
	}
}

func (f *fakeExec) Execute(ctx context.Context, cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	for _, s := range firmware.All() {
		read, _ := f.builder.RenderRead(command.Read{Setting: s})
		if cmd == read {
			if err := f.readErrs[s]; err != nil {
				return "", err
			}
			return f.responses[s], nil
		}
		for _, v := range s.Domain() {
			write, _ := f.builder.RenderWrite(command.Write{Setting: s, Target: v})
			if cmd == write {
				if err := f.writeErrs[s]; err != nil {
					return "", err
				}
				f.responses[s] = hardwareResponse(s, v)
				return "", nil
			}
		}
	}
	return "", errors.New("unexpected command: " + cmd)
}

func (f *fakeExec) writes() []string {
	var out []string
	for _, c := range f.calls {
		if !strings.Contains(c, "cat ") {
			out = append(out, c)
		}
	}
	return out
}

func hardwareResponse(s firmware.Setting, v firmware.Value) string {
	if s == firmware.ConservationMode {
		return string('0' + rune(v))
	}
	return "0x" + string('0'+rune(v))
}

func TestReload(t *testing.T) {
	f := newFakeExec("1", "0x0", "0x2")
	r := New(f, nil)

	session := r.Reload(context.Background())

	want := map[firmware.Setting]firmware.Value{
		firmware.ConservationMode: firmware.On,
		firmware.RapidCharge:      firmware.Off,
		firmware.PerformanceMode:  firmware.BatterySaving,
	}
	for s, v := range want {
		got, ok := session.Get(s).Value()
		if !ok || got != v {
			t.Errorf("%s = %v (known=%v), want %d", s, got, ok, v)
		}
	}
	if r.Session() != session {
		t.Error("Reload should replace the session")
	}
	if len(f.calls) != 3 {
		t.Errorf("expected 3 probe calls, got %d", len(f.calls))
	}
}

func TestReload_Idempotent(t *testing.T) {
	f := newFakeExec("0", "garbage", "0x1")
	r := New(f, nil)

	first := r.Reload(context.Background())
	second := r.Reload(context.Background())
	if !first.Equal(second) {
		t.Error("two reloads over unchanged hardware should produce equal sessions")
	}
	if first == second {
		t.Error("each reload should build a new session")
	}
}

func TestReload_FailureIsIsolated(t *testing.T) {
	f := newFakeExec("1", "", "0x0")
	f.readErrs[firmware.RapidCharge] = &executor.ExecError{ExitCode: 126, Stderr: "permission denied"}
	r := New(f, nil)

	session := r.Reload(context.Background())

	rapid := session.Get(firmware.RapidCharge)
	if rapid.IsKnown() {
		t.Fatal("rapid charge should be Unknown after executor failure")
	}
	if rapid.Reason() != firmware.ReasonExecutorFailure {
		t.Errorf("reason = %s, want executor_failure", rapid.Reason())
	}
	if !strings.HasPrefix(rapid.Raw(), "Error: ") {
		t.Errorf("raw = %q, want Error: prefix", rapid.Raw())
	}
	if !session.Get(firmware.ConservationMode).IsKnown() || !session.Get(firmware.PerformanceMode).IsKnown() {
		t.Error("other settings should still be known")
	}
}

func TestComputeWrites(t *testing.T) {
	tests := []struct {
		name string
		cm   string
		rc   string
		pm   string
		req  Request
		want []command.Write
	}{
		{
			name: "conservation_off_to_on",
			cm:   "0", rc: "0x0", pm: "0x0",
			req:  Request{firmware.ConservationMode: firmware.On},
			want: []command.Write{{Setting: firmware.ConservationMode, Target: firmware.On}},
		},
		{
			name: "requested_equals_current",
			cm:   "0", rc: "0x0", pm: "0x0",
			req:  Request{firmware.ConservationMode: firmware.Off},
			want: nil,
		},
		{
			name: "unknown_is_never_written",
			cm:   "Error: nope", rc: "0x12", pm: "",
			req: Request{
				firmware.ConservationMode: firmware.On,
				firmware.RapidCharge:      firmware.On,
				firmware.PerformanceMode:  firmware.BatterySaving,
			},
			want: nil,
		},
		{
			name: "fixed_order",
			cm:   "1", rc: "0x1", pm: "0x1",
			req: Request{
				firmware.PerformanceMode:  firmware.IntelligentCooling,
				firmware.RapidCharge:      firmware.Off,
				firmware.ConservationMode: firmware.Off,
			},
			want: []command.Write{
				{Setting: firmware.ConservationMode, Target: firmware.Off},
				{Setting: firmware.RapidCharge, Target: firmware.Off},
				{Setting: firmware.PerformanceMode, Target: firmware.IntelligentCooling},
			},
		},
		{
			name: "absent_setting_left_alone",
			cm:   "1", rc: "0x1", pm: "0x1",
			req:  Request{firmware.PerformanceMode: firmware.BatterySaving},
			want: []command.Write{{Setting: firmware.PerformanceMode, Target: firmware.BatterySaving}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(newFakeExec(tt.cm, tt.rc, tt.pm), nil)
			r.Reload(context.Background())

			got := r.ComputeWrites(tt.req)
			if len(got) != len(tt.want) {
				t.Fatalf("ComputeWrites = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("write[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestComputeWrites_BeforeFirstReload(t *testing.T) {
	r := New(newFakeExec("0", "0x0", "0x0"), nil)
	if got := r.ComputeWrites(Request{firmware.ConservationMode: firmware.On}); len(got) != 0 {
		t.Errorf("expected no writes before the first reload, got %v", got)
	}
}

// Rapid charge probe fails; a save requesting it ON must not touch it.
func TestSave_UnknownRapidChargeIsSkipped(t *testing.T) {
	f := newFakeExec("0", "", "0x0")
	f.readErrs[firmware.RapidCharge] = errors.New("Error: permission denied")
	r := New(f, nil)
	r.Reload(context.Background())

	res := r.Save(context.Background(), Request{firmware.RapidCharge: firmware.On}, "test")

	if len(res.Writes) != 0 {
		t.Errorf("expected no writes, got %v", res.Writes)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != firmware.RapidCharge {
		t.Errorf("Skipped = %v, want [rapid_charge]", res.Skipped)
	}
	if len(f.writes()) != 0 {
		t.Errorf("executor received writes: %v", f.writes())
	}
	if res.Summary() != "No changes" {
		t.Errorf("Summary = %q", res.Summary())
	}
}

func TestSave_NoChanges(t *testing.T) {
	f := newFakeExec("1", "0x1", "0x2")
	r := New(f, nil)
	session := r.Reload(context.Background())

	res := r.Save(context.Background(), session.Baseline(), "test")

	if len(res.Writes) != 0 || len(res.Changed) != 0 {
		t.Errorf("expected nothing to do, got writes=%v changed=%v", res.Writes, res.Changed)
	}
	if res.Summary() != "No changes" {
		t.Errorf("Summary = %q, want No changes", res.Summary())
	}
	if len(f.calls) != 3 {
		t.Errorf("no-op save should not reload; calls = %d", len(f.calls))
	}
}

func TestSave_AppliesAndReloads(t *testing.T) {
	f := newFakeExec("0", "0x0", "0x0")
	r := New(f, nil)
	r.Reload(context.Background())

	res := r.Save(context.Background(), Request{
		firmware.ConservationMode: firmware.On,
		firmware.PerformanceMode:  firmware.ExtremePerformance,
	}, "test")

	if res.Summary() != "Sets: Battery Conservation Mode, System Performance Mode" {
		t.Errorf("Summary = %q", res.Summary())
	}
	if res.ID == "" {
		t.Error("save ID should be set")
	}
	if v, _ := res.Session.Get(firmware.PerformanceMode).Value(); v != firmware.ExtremePerformance {
		t.Errorf("session after save: performance_mode = %d", v)
	}
	writes := f.writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %v", writes)
	}
	if !strings.HasPrefix(writes[0], "echo 1 | tee ") {
		t.Errorf("first write should be conservation mode, got %s", writes[0])
	}
}

func TestApplyWrites_FailureDoesNotAbort(t *testing.T) {
	f := newFakeExec("0", "0x0", "0x0")
	f.writeErrs[firmware.ConservationMode] = errors.New("tee: permission denied")
	r := New(f, nil)
	r.Reload(context.Background())

	res := r.ApplyWrites(context.Background(), []command.Write{
		{Setting: firmware.PerformanceMode, Target: firmware.BatterySaving},
		{Setting: firmware.ConservationMode, Target: firmware.On},
	})

	if _, failed := res.Failed[firmware.ConservationMode]; !failed {
		t.Error("conservation mode failure should be recorded")
	}
	if len(res.Changed) != 1 || res.Changed[0] != firmware.PerformanceMode {
		t.Errorf("Changed = %v, want [performance_mode]", res.Changed)
	}
	writes := f.writes()
	if len(writes) != 2 || !strings.HasPrefix(writes[0], "echo 1") {
		t.Errorf("writes should run in fixed order, got %v", writes)
	}
}

func TestPreview(t *testing.T) {
	f := newFakeExec("0", "0x1", "0x0")
	r := New(f, nil)
	r.Reload(context.Background())

	cmds, err := r.Preview(Request{firmware.RapidCharge: firmware.Off})
	if err != nil {
		t.Fatal(err)
	}
	want := `modprobe acpi_call; echo '\_SB.PCI0.LPC0.EC0.VPC0.SBMC 0x08' > /proc/acpi/call`
	if len(cmds) != 1 || cmds[0] != want {
		t.Errorf("Preview = %v", cmds)
	}
	if len(f.writes()) != 0 {
		t.Error("Preview must not execute anything")
	}
}

type recordingObserver struct {
	reloads int
	writes  []WriteEvent
	skips   []SkipEvent
}

func (o *recordingObserver) Reloaded(*Session)          { o.reloads++ }
func (o *recordingObserver) WriteApplied(ev WriteEvent) { o.writes = append(o.writes, ev) }
func (o *recordingObserver) WriteSkipped(ev SkipEvent)  { o.skips = append(o.skips, ev) }

func TestObserver(t *testing.T) {
	f := newFakeExec("0", "bogus", "0x0")
	obs := &recordingObserver{}
	r := New(f, nil, obs)
	r.Reload(context.Background())

	res := r.Save(context.Background(), Request{
		firmware.ConservationMode: firmware.On,
		firmware.RapidCharge:      firmware.On,
	}, "cli")

	if obs.reloads != 2 {
		t.Errorf("reloads = %d, want 2", obs.reloads)
	}
	if len(obs.writes) != 1 || obs.writes[0].SaveID != res.ID || obs.writes[0].Source != "cli" {
		t.Errorf("writes = %+v", obs.writes)
	}
	if obs.writes[0].Command == "" {
		t.Error("write event should carry the rendered command")
	}
	if len(obs.skips) != 1 || obs.skips[0].Setting != firmware.RapidCharge {
		t.Errorf("skips = %+v", obs.skips)
	}
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(map[string]string{"rapid_charge": "on", "performance_mode": "Battery Saving"})
	if err != nil {
		t.Fatal(err)
	}
	if req[firmware.RapidCharge] != firmware.On || req[firmware.PerformanceMode] != firmware.BatterySaving {
		t.Errorf("ParseRequest = %v", req)
	}
	if _, err := ParseRequest(map[string]string{"rapid_charge": "turbo"}); err == nil {
		t.Error("expected error for invalid value")
	}
	if _, err := ParseRequest(map[string]string{"keyboard_light": "on"}); err == nil {
		t.Error("expected error for unknown setting")
	}
}
