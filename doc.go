// Package transload streams a single source HTTP download simultaneously
// to one or more upload destinations (and optionally a local file) without
// buffering the complete payload in memory or on disk.
//
// The hard engineering lives in the tee-with-backpressure coordinator: a
// one-producer/many-consumer pipeline in which the slowest live consumer
// throttles the producer, individual consumer failures are tolerated up to
// every-consumer-dead, per-consumer idle timeouts abort only the affected
// consumer, and hashes/byte counters are maintained per leg.
package transload
