// Package queue provides the bounded thread-safe queues the streaming
// pipeline is built on.
//
// Two types with opposite overflow policies:
//
//   - Dropping: a bounded FIFO that never blocks the producer. When full,
//     Push discards the incoming element and reports the drop. Used for
//     the session ingest queue and the per-listener playback queues,
//     where a slow consumer must cost audio rather than stall the
//     realtime producer.
//
//   - Ring: a fixed-size buffer that overwrites the oldest element when
//     full, keeping a sliding window of the most recent data. Used for
//     the in-memory log tail.
//
// Dropping supports graceful shutdown through CloseWrite, which lets the
// consumer drain remaining elements before Next reports ErrDone, and
// immediate teardown through CloseWithError.
package queue
