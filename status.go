package binaural

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// LibraryState classifies the loaded IR library.
type LibraryState int

const (
	// StateNoFolder means no library root is set or it does not exist.
	StateNoFolder LibraryState = iota

	// StateInvalid means the root exists but is not a directory or holds no
	// usable IRs for the current sample-rate bucket.
	StateInvalid

	// StateLoaded means at least one IR is loaded.
	StateLoaded
)

// String returns a short name for the state.
func (s LibraryState) String() string {
	switch s {
	case StateNoFolder:
		return "no-folder"
	case StateInvalid:
		return "invalid"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("LibraryState(%d)", int(s))
	}
}

// LibraryStatus describes the library currently used by the audio path.
type LibraryStatus struct {
	State  LibraryState
	Root   string
	Bucket string
	Count  int

	// SnapshotID identifies the published library snapshot. It changes on
	// every load or clear.
	SnapshotID uuid.UUID
}

// Message returns the status line shown to users.
func (s LibraryStatus) Message() string {
	switch s.State {
	case StateLoaded:
		return fmt.Sprintf("LOADED: %s (%d IRs)", filepath.Base(s.Root), s.Count)
	case StateInvalid:
		return "ERROR: Invalid Folder!"
	default:
		return "Please Select A Folder!"
	}
}
