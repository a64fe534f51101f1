package firmware

import "testing"

func TestSetting_ParseValue(t *testing.T) {
	tests := []struct {
		setting Setting
		input   string
		want    Value
		wantErr bool
	}{
		{ConservationMode, "on", On, false},
		{ConservationMode, "OFF", Off, false},
		{ConservationMode, "1", On, false},
		{RapidCharge, " On ", On, false},
		{RapidCharge, "2", 0, true},
		{PerformanceMode, "battery_saving", BatterySaving, false},
		{PerformanceMode, "Extreme Performance", ExtremePerformance, false},
		{PerformanceMode, "intelligent-cooling", IntelligentCooling, false},
		{PerformanceMode, "0", IntelligentCooling, false},
		{PerformanceMode, "turbo", 0, true},
		{PerformanceMode, "", 0, true},
	}

	for _, tt := range tests {
		got, err := tt.setting.ParseValue(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s.ParseValue(%q) expected error, got %d", tt.setting, tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s.ParseValue(%q) unexpected error: %v", tt.setting, tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s.ParseValue(%q) = %d, want %d", tt.setting, tt.input, got, tt.want)
		}
	}
}

func TestParseSetting(t *testing.T) {
	for input, want := range map[string]Setting{
		"conservation_mode":       ConservationMode,
		"rapid-charge":            RapidCharge,
		"System Performance Mode": PerformanceMode,
	} {
		got, err := ParseSetting(input)
		if err != nil {
			t.Errorf("ParseSetting(%q) error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSetting(%q) = %s, want %s", input, got, want)
		}
	}
	if _, err := ParseSetting("fan_curve"); err == nil {
		t.Error("expected error for unknown setting")
	}
}

func TestSetting_Order(t *testing.T) {
	all := All()
	if len(all) != SettingCount {
		t.Fatalf("All() returned %d settings, want %d", len(all), SettingCount)
	}
	want := []string{"conservation_mode", "rapid_charge", "performance_mode"}
	for i, s := range all {
		if s.String() != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, s, want[i])
		}
	}
}

func TestSetting_Labels(t *testing.T) {
	if got := PerformanceMode.ValueLabel(BatterySaving); got != "Battery Saving" {
		t.Errorf("label = %q", got)
	}
	if got := RapidCharge.Title(); got != "Rapid Charge" {
		t.Errorf("title = %q", got)
	}
	if got := ConservationMode.ValueName(Value(7)); got != "7" {
		t.Errorf("out-of-domain name = %q", got)
	}
}
