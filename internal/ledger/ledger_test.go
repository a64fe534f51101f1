package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/db"
	"github.com/dokzlo13/ideapadd/internal/firmware"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_AppendAndRecent(t *testing.T) {
	l := openLedger(t)

	if err := l.Append(EventWriteApplied, "save-1:rapid_charge", "cli", "rapid_charge", map[string]any{"target": "on"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(EventWriteSkipped, "save-1:performance_mode", "cli", "performance_mode", nil); err != nil {
		t.Fatal(err)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].EventType != EventWriteSkipped {
		t.Errorf("newest entry = %s, want write_skipped", entries[0].EventType)
	}
	if entries[1].Payload["target"] != "on" {
		t.Errorf("payload = %v", entries[1].Payload)
	}
	if entries[0].Payload != nil {
		t.Errorf("nil payload should round trip as nil, got %v", entries[0].Payload)
	}
}

func TestLedger_IdempotencyKey(t *testing.T) {
	l := openLedger(t)

	for i := 0; i < 3; i++ {
		if err := l.Append(EventWriteApplied, "save-1:conservation_mode", "cli", "conservation_mode", nil); err != nil {
			t.Fatal(err)
		}
	}
	// Same key, different type is a separate event.
	if err := l.Append(EventWriteFailed, "save-1:conservation_mode", "cli", "conservation_mode", nil); err != nil {
		t.Fatal(err)
	}

	entries, _ := l.Recent(10)
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestLedger_BySettingAndRetention(t *testing.T) {
	l := openLedger(t)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return base.Add(-72 * time.Hour) }
	_ = l.Append(EventWriteApplied, "", "cli", "rapid_charge", nil)

	l.now = func() time.Time { return base }
	_ = l.Append(EventWriteApplied, "", "cli", "rapid_charge", nil)
	_ = l.Append(EventWriteApplied, "", "cli", "conservation_mode", nil)

	rapid, err := l.BySetting("rapid_charge", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rapid) != 2 {
		t.Errorf("BySetting = %d entries, want 2", len(rapid))
	}

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestObserver_RecordsWritesAndSkips(t *testing.T) {
	l := openLedger(t)
	o := NewObserver(l)

	o.WriteApplied(reconcile.WriteEvent{
		SaveID:  "abc",
		Source:  "api",
		Write:   command.Write{Setting: firmware.PerformanceMode, Target: firmware.BatterySaving},
		Command: "echo",
	})
	o.WriteApplied(reconcile.WriteEvent{
		SaveID: "abc",
		Source: "api",
		Write:  command.Write{Setting: firmware.ConservationMode, Target: firmware.On},
		Err:    errors.New("denied"),
	})
	o.WriteSkipped(reconcile.SkipEvent{
		SaveID:    "abc",
		Source:    "api",
		Setting:   firmware.RapidCharge,
		Requested: firmware.On,
		Baseline:  firmware.Unknown("Error: nope", firmware.ReasonExecutorFailure),
	})

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	types := map[EventType]*Entry{}
	for _, e := range entries {
		types[e.EventType] = e
	}
	if e := types[EventWriteApplied]; e == nil || e.Payload["target"] != "battery_saving" {
		t.Errorf("write_applied entry = %+v", e)
	}
	if e := types[EventWriteFailed]; e == nil || e.Payload["error"] != "denied" {
		t.Errorf("write_failed entry = %+v", e)
	}
	if e := types[EventWriteSkipped]; e == nil || e.Payload["reason"] != "executor_failure" || e.Setting != "rapid_charge" {
		t.Errorf("write_skipped entry = %+v", e)
	}
}
