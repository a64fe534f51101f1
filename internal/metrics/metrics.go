// Package metrics exposes firmware setting state and write outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dokzlo13/ideapadd/internal/firmware"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// Metrics implements reconcile.Observer and keeps Prometheus collectors up to date.
type Metrics struct {
	SettingValue   *prometheus.GaugeVec
	SettingKnown   *prometheus.GaugeVec
	ReloadsTotal   prometheus.Counter
	WritesTotal    *prometheus.CounterVec
	SkippedTotal   *prometheus.CounterVec
	PowerOnBattery prometheus.Gauge
}

var _ reconcile.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SettingValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ideapadd_setting_value",
			Help: "Current value code of a firmware setting, -1 when unknown",
		}, []string{"setting"}),
		SettingKnown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ideapadd_setting_known",
			Help: "1 when the firmware setting state could be read, 0 otherwise",
		}, []string{"setting"}),
		ReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ideapadd_reloads_total",
			Help: "Total number of hardware state reloads",
		}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideapadd_writes_total",
			Help: "Total number of firmware writes by setting and result",
		}, []string{"setting", "result"}),
		SkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ideapadd_skipped_writes_total",
			Help: "Total number of requested writes refused because the current state was unknown",
		}, []string{"setting"}),
		PowerOnBattery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ideapadd_power_on_battery",
			Help: "1 when the system runs on battery, as reported by UPower",
		}),
	}

	reg.MustRegister(m.SettingValue, m.SettingKnown, m.ReloadsTotal, m.WritesTotal, m.SkippedTotal, m.PowerOnBattery)
	return m
}

// Reloaded updates the per-setting gauges.
func (m *Metrics) Reloaded(session *reconcile.Session) {
	if m == nil {
		return
	}
	m.ReloadsTotal.Inc()
	for _, s := range firmware.All() {
		v, ok := session.Get(s).Value()
		if ok {
			m.SettingValue.WithLabelValues(s.String()).Set(float64(v))
			m.SettingKnown.WithLabelValues(s.String()).Set(1)
		} else {
			m.SettingValue.WithLabelValues(s.String()).Set(-1)
			m.SettingKnown.WithLabelValues(s.String()).Set(0)
		}
	}
}

// WriteApplied counts a write by outcome.
func (m *Metrics) WriteApplied(ev reconcile.WriteEvent) {
	if m == nil {
		return
	}
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	m.WritesTotal.WithLabelValues(ev.Write.Setting.String(), result).Inc()
}

// WriteSkipped counts a refused write.
func (m *Metrics) WriteSkipped(ev reconcile.SkipEvent) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(ev.Setting.String()).Inc()
}

// SetOnBattery records the power source.
func (m *Metrics) SetOnBattery(onBattery bool) {
	if m == nil {
		return
	}
	if onBattery {
		m.PowerOnBattery.Set(1)
	} else {
		m.PowerOnBattery.Set(0)
	}
}
