// Package command turns structured firmware read/write requests into the
// exact shell text handed to the privileged executor.
package command

import (
	"fmt"

	"github.com/dokzlo13/ideapadd/internal/firmware"
)

// Defaults for the IdeaPad Gaming 3 (15ARH05).
const (
	DefaultConservationPath = "/sys/devices/pci0000:00/0000:00:14.3/PNP0C09:00/VPC2004:00/conservation_mode"
	DefaultCallPath         = "/proc/acpi/call"
	DefaultModule           = "acpi_call"
)

// ACPI methods used by the probes and writes.
const (
	methodRapidChargeProbe = `\_SB.PCI0.LPC0.EC0.QCHO`
	methodPerformanceProbe = `\_SB.PCI0.LPC0.EC0.SPMO`
	callRapidChargeOn      = `\_SB.PCI0.LPC0.EC0.VPC0.SBMC 0x07`
	callRapidChargeOff     = `\_SB.PCI0.LPC0.EC0.VPC0.SBMC 0x08`
	callIntelligentCooling = `\_SB_.GZFD.WMAA 0 0x2C 2`
	callExtremePerformance = `\_SB_.GZFD.WMAA 0 0x2C 3`
	callBatterySaving      = `\_SB_.GZFD.WMAA 0 0x2C 1`
)

// Read asks for the current value of a setting.
type Read struct {
	Setting firmware.Setting
}

// Write asks to move a setting to Target.
type Write struct {
	Setting firmware.Setting
	Target  firmware.Value
}

// String describes the write, e.g. "performance_mode=battery_saving".
func (w Write) String() string {
	return w.Setting.String() + "=" + w.Setting.ValueName(w.Target)
}

// Builder renders commands. The zero Builder is not usable; use NewBuilder or Default.
type Builder struct {
	conservationPath string
	callPath         string
	module           string
}

// NewBuilder creates a builder. Empty arguments fall back to the defaults.
func NewBuilder(conservationPath, callPath, module string) *Builder {
	if conservationPath == "" {
		conservationPath = DefaultConservationPath
	}
	if callPath == "" {
		callPath = DefaultCallPath
	}
	if module == "" {
		module = DefaultModule
	}
	return &Builder{
		conservationPath: conservationPath,
		callPath:         callPath,
		module:           module,
	}
}

// Default returns a builder for the stock device paths.
func Default() *Builder {
	return NewBuilder("", "", "")
}

// ConservationPath returns the sysfs attribute this builder targets.
func (b *Builder) ConservationPath() string {
	return b.conservationPath
}

// RenderRead returns the probe command for a setting.
func (b *Builder) RenderRead(r Read) (string, error) {
	switch r.Setting {
	case firmware.ConservationMode:
		return fmt.Sprintf("cat %s", b.conservationPath), nil
	case firmware.RapidCharge:
		return b.probe(methodRapidChargeProbe), nil
	case firmware.PerformanceMode:
		return b.probe(methodPerformanceProbe), nil
	default:
		return "", fmt.Errorf("no read command for %s", r.Setting)
	}
}

// RenderWrite returns the command that sets w.Setting to w.Target.
func (b *Builder) RenderWrite(w Write) (string, error) {
	if !w.Setting.Contains(w.Target) {
		return "", fmt.Errorf("value %d is not valid for %s", w.Target, w.Setting)
	}

	switch w.Setting {
	case firmware.ConservationMode:
		return fmt.Sprintf("echo %d | tee %s > /dev/null", w.Target, b.conservationPath), nil
	case firmware.RapidCharge:
		if w.Target == firmware.On {
			return b.call(callRapidChargeOn), nil
		}
		return b.call(callRapidChargeOff), nil
	case firmware.PerformanceMode:
		switch w.Target {
		case firmware.IntelligentCooling:
			return b.call(callIntelligentCooling), nil
		case firmware.ExtremePerformance:
			return b.call(callExtremePerformance), nil
		default:
			return b.call(callBatterySaving), nil
		}
	default:
		return "", fmt.Errorf("no write command for %s", w.Setting)
	}
}

// probe loads the module, evaluates method and reads back the result.
func (b *Builder) probe(method string) string {
	return fmt.Sprintf("%s; cat %s", b.call(method), b.callPath)
}

// call loads the module and evaluates an ACPI method expression.
func (b *Builder) call(expr string) string {
	return fmt.Sprintf("modprobe %s; echo '%s' > %s", b.module, expr, b.callPath)
}
