// Package reembed regenerates the chunk vectors of stored memories with a
// new or updated embedding model.
//
// Memories are walked in batches. Each memory's extracted text is chunked
// and embedded again through embedding.Store, with retries on failure.
// Vectors of earlier models are kept unless purging is requested, so search
// can keep using the old model until the run completes.
package reembed
