package queue

import "errors"

var (
	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when a dead letter item id is unknown.
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded is returned when a worker gives up on a batch.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
