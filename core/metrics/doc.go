// Package metrics defines interfaces and the sink-selection plumbing for
// observing the task dispatch core. Sinks like the Prometheus and InfluxDB
// implementations in infra/metrics record events such as auction outcomes,
// bid proposals and task-state transitions, and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// more than one sink is configured.
package metrics
