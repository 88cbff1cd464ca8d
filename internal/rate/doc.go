// Package rate provides fixed-window request counters for the demo identity backend.
//
// # Window semantics
//
// A window opens on the first hit for a key and lasts Config.Window. Hits beyond Config.Limit
// inside a window are denied and not counted. Two counters are provided:
//   - MemoryCounter: process-local map, pruned lazily
//   - RedisCounter: INCR + conditional PEXPIRE on first hit, shared between processes
//
// Key prefixes:
//   - login: login attempts per client IP
//
// # What this package must NOT do
//
//   - Decide which requests are limited (callers choose keys).
//   - Be imported outside the goSession module.
package rate
