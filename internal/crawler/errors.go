package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrWaitTimeout means a page loaded but its wait condition never settled.
	ErrWaitTimeout = errors.New("wait condition not met")
	// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrNotFound signals that a store holds no record of the requested kind yet.
	ErrNotFound = errors.New("not found")
)

// NavigationNotFoundError aborts a run: the navigation menu is missing or empty,
// which means the upstream markup changed.
type NavigationNotFoundError struct {
	Reason string
	// Content is the raw page, kept for the diagnostic dump.
	Content []byte
	Err     error
}

func (e *NavigationNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigation not found: %s: %v", e.Reason, e.Err)
	}
	return "navigation not found: " + e.Reason
}

func (e *NavigationNotFoundError) Unwrap() error { return e.Err }

// TaskFetchError is a network, timeout or render failure for one task.
type TaskFetchError struct {
	Task Task
	Err  error
}

func (e *TaskFetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Task.Model, e.Task.URL, e.Err)
}

func (e *TaskFetchError) Unwrap() error { return e.Err }

// ExtractionError means a listing page could not be queried.
type ExtractionError struct {
	Task Task
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Task.Model, e.Task.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SetupError is an unrecoverable failure before or around the crawl: driver
// launch, session creation, store connection, or root page fetch.
type SetupError struct {
	Component string
	Err       error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s setup failed: %v", e.Component, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
