package transfer

import "fmt"

// NetworkError represents failures opening or reading the remote stream,
// including non-2xx responses and truncated bodies.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "open_stream", "read_stream")
	URL        string // Remote resource being fetched
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.URL)
	}

	if e.Err != nil {
		return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
	}

	return fmt.Sprintf("network error during %s", e.Operation)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// EmptyResponseError is returned when the server answered without a body to stream.
type EmptyResponseError struct {
	URL string
}

func (e *EmptyResponseError) Error() string {
	return "cannot download"
}

// FilesystemError represents failures creating, writing, copying or deleting
// files and directories under a storage root.
type FilesystemError struct {
	Operation string // "create_dir", "write_file", "copy_dir", "delete_dir"...
	Path      string
	Err       error
}

func (e *FilesystemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filesystem error during %s on '%s': %v", e.Operation, e.Path, e.Err)
	}

	return fmt.Sprintf("filesystem error during %s on '%s'", e.Operation, e.Path)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// ResolutionError is returned when a requested storage root is not available,
// most commonly because no removable media is mounted.
type ResolutionError struct {
	Location string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("storage location '%s' is not available", e.Location)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
