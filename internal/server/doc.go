// Package server assembles a runnable authengine deployment: YAML
// configuration, credential and booking stores, the optional Redis client,
// audit sinks, metrics exporters and the HTTP listener.
//
// It is the only place that knows about every backend. The root package and
// the HTTP layer receive already-built collaborators.
package server
