// Package prioritize turns one cycle of blind-spot sensor readings into the
// ordered list of alerts shown to the driver. It holds the threshold
// classifier, the deterministic prioritizer, and a remote-backed prioritizer
// that falls back to the deterministic rule on any failure.
package prioritize
