// Package async provides a minimal Future abstraction for fan-out work.
// Batch operations against external APIs start one Future per item and join
// them all before aggregating, so items fail independently and the caller
// sees every outcome.
package async
