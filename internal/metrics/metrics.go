// Package metrics defines the prometheus collectors of taskstore.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	Fail    = "fail"
	Ok      = "ok"
	Skipped = "skipped"
)

// Collectors for the task engine client and the checkpoint manager.
var (
	EngineCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskstore_engine_commands_total",
		Help: "Cumulative number of task engine invocations, by outcome.",
	}, []string{"outcome"})
	EngineCommandSecondsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskstore_engine_command_seconds_total",
		Help: "Cumulative number of seconds spent waiting on the task engine.",
	})
	CheckpointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskstore_checkpoints_total",
		Help: "Cumulative number of checkpoint commits attempted, by outcome.",
	}, []string{"outcome"})
	ActivityEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskstore_activity_entries_total",
		Help: "Cumulative number of activity log writes, by severity.",
	}, []string{"severity"})
)

// Collectors returns every taskstore collector, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		EngineCommandsTotal,
		EngineCommandSecondsTotal,
		CheckpointsTotal,
		ActivityEntriesTotal,
	}
}

// Register registers all collectors with reg, ignoring collectors that
// are already registered.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
