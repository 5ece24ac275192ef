// Package audit implements async event dispatching for account and session
// operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON lines, zerolog, fan-out).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, actor, target, IP, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. The Engine decides which events
// to emit. Network sinks (MQTT, InfluxDB) live in the public auditsink package.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authengine or any sibling internal package.
package audit
