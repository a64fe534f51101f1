package state

import (
	"path/filepath"
	"testing"

	"github.com/dokzlo13/ideapadd/internal/db"
)

type sample struct {
	Values map[string]string `json:"values"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "nested", "state.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestTypedStore_Versioning(t *testing.T) {
	ts := NewTypedStore[sample](openStore(t), KindDesired)

	v, version, err := ts.Get("settings")
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 || v.Values != nil {
		t.Errorf("missing entry: version=%d value=%+v", version, v)
	}

	_ = ts.Set("settings", sample{Values: map[string]string{"rapid_charge": "on"}})
	_ = ts.Set("settings", sample{Values: map[string]string{"rapid_charge": "off"}})

	v, version, err = ts.Get("settings")
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if v.Values["rapid_charge"] != "off" {
		t.Errorf("value = %+v", v)
	}
}

func TestStore_Clear(t *testing.T) {
	s := openStore(t)
	_ = s.Set(KindDesired, "settings", []byte(`{}`))
	_ = s.Set(KindObserved, "session", []byte(`{}`))

	if err := s.Clear(KindDesired); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.Get(KindDesired, "settings"); e.Payload != nil {
		t.Error("desired entry should be cleared")
	}
	if e, _ := s.Get(KindObserved, "session"); e.Payload == nil {
		t.Error("observed entry should survive clearing another kind")
	}

	if err := s.Clear(""); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.Get(KindObserved, "session"); e.Payload != nil {
		t.Error("Clear(\"\") should remove everything")
	}
}

func TestStore_Delete(t *testing.T) {
	s := openStore(t)
	_ = s.Set(KindDesired, "settings", []byte(`{"values":{}}`))
	if err := s.Delete(KindDesired, "settings"); err != nil {
		t.Fatal(err)
	}
	if e, _ := s.Get(KindDesired, "settings"); e.Version != 0 {
		t.Errorf("version after delete = %d", e.Version)
	}
}
