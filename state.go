package binaural

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// State envelope identification.
const (
	stateMagic   = "HRTF"
	StateVersion = 1
)

// State is the persisted processor state: the control targets and the
// selected library root.
type State struct {
	Azimuth     float64 `msgpack:"azimuth"`
	Elevation   float64 `msgpack:"elevation"`
	Width       float64 `msgpack:"width"`
	LibraryRoot string  `msgpack:"library_root"`
}

type stateEnvelope struct {
	Magic   string `msgpack:"magic"`
	Version uint32 `msgpack:"version"`
	State   State  `msgpack:"state"`
}

// MarshalState encodes s in the versioned state envelope.
func MarshalState(s State) ([]byte, error) {
	data, err := msgpack.Marshal(&stateEnvelope{
		Magic:   stateMagic,
		Version: StateVersion,
		State:   s,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// UnmarshalState decodes a state envelope produced by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	var env stateEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if env.Magic != stateMagic {
		return State{}, fmt.Errorf("%w: bad magic %q", ErrInvalidState, env.Magic)
	}
	if env.Version == 0 || env.Version > StateVersion {
		return State{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidState, env.Version)
	}
	return env.State, nil
}

// State returns the current control targets and library root.
func (p *Processor) State() State {
	return State{
		Azimuth:     p.Parameter(ParamAzimuth),
		Elevation:   p.Parameter(ParamElevation),
		Width:       p.Parameter(ParamWidth),
		LibraryRoot: p.LibraryRoot(),
	}
}

// ApplyState sets the control targets and selects the library root, which
// reloads the library at the current sample rate. An empty root clears the
// library.
func (p *Processor) ApplyState(s State) {
	p.SetParameter(ParamAzimuth, s.Azimuth)
	p.SetParameter(ParamElevation, s.Elevation)
	p.SetParameter(ParamWidth, s.Width)
	p.SetLibraryRoot(s.LibraryRoot)
}

// SaveState encodes the processor state.
func (p *Processor) SaveState() ([]byte, error) {
	return MarshalState(p.State())
}

// LoadState decodes and applies a state produced by SaveState. The
// processor is left unchanged if data is invalid.
func (p *Processor) LoadState(data []byte) error {
	s, err := UnmarshalState(data)
	if err != nil {
		return err
	}
	p.ApplyState(s)
	return nil
}
