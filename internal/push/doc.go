// Package push implements the real-time update distribution core: a single
// coordinating actor that fans out domain-change envelopes to connected
// sessions over pluggable transports, with gap-safe per-entity sequencing,
// per-session entity filtering, and a shared fixed-window rate limiter.
//
// All mutable state (session registry, sequence counters, rate-limit ledger)
// is owned by the Coordinator goroutine and reached only via its command
// channel. That serialized execution is what makes sequencing gap-free
// without any distributed coordination.
package push
