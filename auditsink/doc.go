// Package auditsink holds audit sinks that ship engine events out of
// process.
//
// MQTT publishes each event as JSON on <topic>/<event_type>. Influx writes
// each event as a point in the configured bucket through the non-blocking
// batched write API. Both satisfy authengine.AuditSink and are meant to sit
// behind the Engine's async dispatcher, so a slow broker never stalls an
// authentication call.
package auditsink
