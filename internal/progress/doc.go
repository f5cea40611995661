// Package progress carries crawl-run progress events from the worker pool to
// pluggable sinks. Emit never blocks; a background goroutine batches events
// and hands each batch to every sink.
package progress
