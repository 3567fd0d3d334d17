package models

import "time"

// FileFailure records a file that could not be transferred.
type FileFailure struct {
	Path  string
	Error error
}

// TransferResult holds the result of the transfer phase.
type TransferResult struct {
	Total        int
	Completed    int
	BytesWritten int64
	Failures     []FileFailure // only populated when continuing on error
	Duration     time.Duration
}
