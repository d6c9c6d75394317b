// Package internaldefs maps client counters onto labeled metric families
// so the Prometheus and OTel exporters publish the same series.
package internaldefs
