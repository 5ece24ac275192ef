// Package prometheus renders authengine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads an Engine snapshot on every scrape. Counters are named
// authengine_*_total; the session-check latency histogram is
// authengine_session_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
