package command

import (
	"testing"

	"github.com/dokzlo13/ideapadd/internal/firmware"
)

const cmodePath = "/sys/devices/pci0000:00/0000:00:14.3/PNP0C09:00/VPC2004:00/conservation_mode"

func TestRenderRead(t *testing.T) {
	b := Default()
	tests := []struct {
		setting firmware.Setting
		want    string
	}{
		{firmware.ConservationMode, "cat " + cmodePath},
		{firmware.RapidCharge, `modprobe acpi_call; echo '\_SB.PCI0.LPC0.EC0.QCHO' > /proc/acpi/call; cat /proc/acpi/call`},
		{firmware.PerformanceMode, `modprobe acpi_call; echo '\_SB.PCI0.LPC0.EC0.SPMO' > /proc/acpi/call; cat /proc/acpi/call`},
	}
	for _, tt := range tests {
		got, err := b.RenderRead(Read{Setting: tt.setting})
		if err != nil {
			t.Fatalf("RenderRead(%s) error: %v", tt.setting, err)
		}
		if got != tt.want {
			t.Errorf("RenderRead(%s)\n got: %s\nwant: %s", tt.setting, got, tt.want)
		}
	}
}

func TestRenderWrite(t *testing.T) {
	b := Default()
	tests := []struct {
		write Write
		want  string
	}{
		{Write{firmware.ConservationMode, firmware.On}, "echo 1 | tee " + cmodePath + " > /dev/null"},
		{Write{firmware.ConservationMode, firmware.Off}, "echo 0 | tee " + cmodePath + " > /dev/null"},
		{Write{firmware.RapidCharge, firmware.On}, `modprobe acpi_call; echo '\_SB.PCI0.LPC0.EC0.VPC0.SBMC 0x07' > /proc/acpi/call`},
		{Write{firmware.RapidCharge, firmware.Off}, `modprobe acpi_call; echo '\_SB.PCI0.LPC0.EC0.VPC0.SBMC 0x08' > /proc/acpi/call`},
		{Write{firmware.PerformanceMode, firmware.IntelligentCooling}, `modprobe acpi_call; echo '\_SB_.GZFD.WMAA 0 0x2C 2' > /proc/acpi/call`},
		{Write{firmware.PerformanceMode, firmware.ExtremePerformance}, `modprobe acpi_call; echo '\_SB_.GZFD.WMAA 0 0x2C 3' > /proc/acpi/call`},
		{Write{firmware.PerformanceMode, firmware.BatterySaving}, `modprobe acpi_call; echo '\_SB_.GZFD.WMAA 0 0x2C 1' > /proc/acpi/call`},
	}
	for _, tt := range tests {
		got, err := b.RenderWrite(tt.write)
		if err != nil {
			t.Fatalf("RenderWrite(%s) error: %v", tt.write, err)
		}
		if got != tt.want {
			t.Errorf("RenderWrite(%s)\n got: %s\nwant: %s", tt.write, got, tt.want)
		}
	}
}

func TestRenderWrite_OutOfDomain(t *testing.T) {
	if _, err := Default().RenderWrite(Write{firmware.RapidCharge, firmware.Value(2)}); err == nil {
		t.Error("expected error for out-of-domain target")
	}
}

func TestNewBuilder_Overrides(t *testing.T) {
	b := NewBuilder("/tmp/cmode", "/tmp/call", "acpi_call_dkms")
	got, _ := b.RenderRead(Read{firmware.PerformanceMode})
	want := `modprobe acpi_call_dkms; echo '\_SB.PCI0.LPC0.EC0.SPMO' > /tmp/call; cat /tmp/call`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if b.ConservationPath() != "/tmp/cmode" {
		t.Errorf("ConservationPath() = %s", b.ConservationPath())
	}
}

func TestWrite_String(t *testing.T) {
	w := Write{firmware.PerformanceMode, firmware.BatterySaving}
	if w.String() != "performance_mode=battery_saving" {
		t.Errorf("String() = %s", w.String())
	}
}
