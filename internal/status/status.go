// Package status models the lifecycle of the managed file and derives it
// from the filesystem and background job signals.
package status

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the FileStatus variants.
type Kind int

const (
	KindIdle Kind = iota
	KindDownloading
	KindDownloaded
	KindMoving
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindDownloading:
		return "downloading"
	case KindDownloaded:
		return "downloaded"
	case KindMoving:
		return "moving"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileStatus is the current state of the managed file. Only the payload
// field matching Kind is meaningful: Progress for KindDownloading, Path for
// KindDownloaded and Cause for KindError.
type FileStatus struct {
	Kind     Kind
	Progress int
	Path     string
	Cause    string
}

func Idle() FileStatus {
	return FileStatus{Kind: KindIdle}
}

// Downloading clamps progress into [0, 100].
func Downloading(progress int) FileStatus {
	return FileStatus{Kind: KindDownloading, Progress: min(max(progress, 0), 100)}
}

func Downloaded(path string) FileStatus {
	return FileStatus{Kind: KindDownloaded, Path: path}
}

func Moving() FileStatus {
	return FileStatus{Kind: KindMoving}
}

func Error(cause string) FileStatus {
	return FileStatus{Kind: KindError, Cause: cause}
}

// Label is the short human readable text for the state.
func (s FileStatus) Label() string {
	switch s.Kind {
	case KindIdle:
		return "No File!"
	case KindDownloading:
		return "Downloading..."
	case KindDownloaded:
		return "Downloaded!"
	case KindMoving:
		return "Moving >>>"
	default:
		return "Error!"
	}
}

func (s FileStatus) String() string {
	switch s.Kind {
	case KindDownloading:
		return fmt.Sprintf("downloading(%d)", s.Progress)
	case KindDownloaded:
		return fmt.Sprintf("downloaded(%s)", s.Path)
	case KindError:
		return fmt.Sprintf("error(%s)", s.Cause)
	default:
		return s.Kind.String()
	}
}

type wireStatus struct {
	State    string `json:"state"`
	Label    string `json:"label"`
	Progress *int   `json:"progress,omitempty"`
	Path     string `json:"path,omitempty"`
	Cause    string `json:"cause,omitempty"`
}

func (s FileStatus) MarshalJSON() ([]byte, error) {
	w := wireStatus{State: s.Kind.String(), Label: s.Label()}

	switch s.Kind {
	case KindDownloading:
		progress := s.Progress
		w.Progress = &progress
	case KindDownloaded:
		w.Path = s.Path
	case KindError:
		w.Cause = s.Cause
	}

	return json.Marshal(w)
}

func (s *FileStatus) UnmarshalJSON(b []byte) error {
	var w wireStatus
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	switch w.State {
	case "idle":
		*s = Idle()
	case "downloading":
		progress := 0
		if w.Progress != nil {
			progress = *w.Progress
		}

		*s = Downloading(progress)
	case "downloaded":
		*s = Downloaded(w.Path)
	case "moving":
		*s = Moving()
	case "error":
		*s = Error(w.Cause)
	default:
		return fmt.Errorf("unknown file status %q", w.State)
	}

	return nil
}
