// Package otel binds goTenant client metrics to OpenTelemetry observable
// instruments.
//
// [New] registers one Int64ObservableCounter per counter family, with the
// family labels as attributes, plus bucket and count gauges for gateway
// latency. A single callback reads the client on each collection. Callers
// own the MeterProvider.
package otel
