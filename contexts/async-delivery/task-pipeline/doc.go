// Package taskpipeline contains the transactional outbox bridge and the
// database-backed job queue that executes deferred side effects (email,
// realtime push) with bounded retries.
//
// Domain and application logic stay decoupled from Postgres, Redis and the
// email provider through ports; bootstrap composes the adapters.
package taskpipeline
