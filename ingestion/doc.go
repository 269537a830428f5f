// Package ingestion accepts new content and turns it into memories.
//
// The Coordinator validates a submission, fingerprints it and either returns
// the memory that already holds the same content or stages the uploads and
// creates a new memory in one transaction. Enrichment (summary, tags,
// transcription, embeddings) happens afterwards through a Scheduler, so
// Ingest returns as soon as the memory is persisted in the processing state.
//
// Validation and storage errors surface synchronously. Nothing partial is
// persisted: blobs staged for a memory that fails to commit are deleted
// before Ingest returns.
package ingestion
