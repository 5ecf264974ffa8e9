// Package stream implements the broadcast session pipeline: one
// broadcaster feeding many listeners through resampling, windowed
// enhancement and bounded fan-out queues.
//
// A [Session] owns the per-track pipeline state (resampler, enhancement
// adapter, overlap-add engine, recording accumulator) and drives it from a
// single ingest goroutine. Transports push decoded audio in with
// [Session.Ingest], which never blocks. Listeners attach through
// [Session.Listen] and consume their bounded queue with a [Pacer] that
// re-slices segments into fixed frames at the wall-clock audio rate.
//
// The [Registry] tracks live sessions by owner, enforces one live session
// per owner with last-writer-wins replacement, and publishes lifecycle
// events for presence consumers.
//
// Lifecycle: a session is created, becomes active on the first ingested
// block, and closes once: stop requests, broadcaster disconnects and
// replacement all funnel through the same graceful path that drains the
// ingest queue, flushes the windowing engine, saves the recording and
// releases every listener.
package stream
