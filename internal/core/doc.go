// Package core provides the business logic for ICCID batch provisioning.
//
// This package holds all domain logic independent of any transport or
// storage engine. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
//   - [Generator]: expands an inclusive identifier range into checksummed
//     identifiers. Range bounds are arbitrary precision (bodies reach 21
//     digits, beyond uint64).
//   - [Analyzer]: decodes identifiers against the prefix registry and folds
//     the results into [BatchStats].
//   - [BatchStore]: persistence contract. Memory, PostgreSQL and SQLite
//     implementations live under internal/store.
//   - [Service]: the entry point used by the HTTP layer. It bounds the number
//     of concurrent generations with a [GenerationLimiter] and retries
//     transient store failures with backoff.
//
// # Generation Flow
//
//  1. Client calls [Service.CreateBatch] with a start and end identifier
//  2. [Generator.Plan] checks the preconditions, first failure wins:
//     format, length mismatch, inverted range, batch ceiling
//  3. A generation slot is acquired and ids are produced off the request
//     goroutine, honoring the caller's context and the generation timeout
//  4. The analyzer runs over the ids in parallel chunks
//  5. The batch is saved through the retrying store
//
// # Error Handling
//
// Caller errors ([ErrInvalidFormat], [ErrLengthMismatch],
// [ErrEmptyOrInvertedRange], [ErrBatchTooLarge], [ErrNotFound]) are never
// retried. Store failures are retried and surface as [ErrStorageUnavailable]
// once attempts run out. [MapError] turns any of them into a coded message
// for display:
//
//   - GEN001-GEN005: Generation errors (format, lengths, range, size)
//   - BAT001-BAT002: Batch errors (not found, busy)
//   - STO001-STO003: Storage errors (unavailable, connection, timeout)
//   - REQ001-REQ002: Request errors (cancelled, invalid)
package core
