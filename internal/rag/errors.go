package rag

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the source provider could not resolve the topic to
// any document, even after the case-normalisation retry.
var ErrNotFound = errors.New("topic not found")

// ErrNoContent indicates the topic resolved but produced nothing ingestible:
// zero sections fetched, or zero chunks after cleaning and windowing.
var ErrNoContent = errors.New("no ingestible content")

// RetrievalError wraps any failure inside the retrieval pipeline so callers
// of GetChunks receive a single clearly-typed failure carrying the original
// cause. Use errors.Is / errors.As to inspect the chain (e.g. ErrNotFound).
type RetrievalError struct {
	// Op is the pipeline operation that failed ("get_chunks", "ingest", ...).
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("rag: %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *RetrievalError) Unwrap() error { return e.Err }

// retrievalErr wraps err into a *RetrievalError unless it already is one,
// so nested pipeline calls don't double-wrap.
func retrievalErr(op string, err error) error {
	var re *RetrievalError
	if errors.As(err, &re) {
		return err
	}
	return &RetrievalError{Op: op, Err: err}
}
