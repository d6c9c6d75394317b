// Package prometheus renders goTenant client metrics in Prometheus text
// exposition format.
//
// [New] reads a [goTenant.Client]. [Exporter.Handler] serves the text over
// HTTP and [Exporter.WriteFile] leaves it for a node_exporter textfile
// collector, which is how orgctl --metrics-file uses it.
//
// Counters are grouped into labeled families such as
// gotenant_auth_steps_total{step,result}. Nothing is registered globally.
package prometheus
