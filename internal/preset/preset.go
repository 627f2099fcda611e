// Package preset stores named processor states.
//
// A preset is a name, the time it was saved and an opaque state blob as
// produced by Processor.SaveState. Presets are msgpack-encoded and kept in a
// Store: Badger for on-disk persistence, Memory for tests.
package preset

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no preset has the requested name.
	ErrNotFound = errors.New("preset: not found")

	// ErrInvalidName is returned for empty names or names with control
	// characters.
	ErrInvalidName = errors.New("preset: invalid name")
)

// keyPrefix namespaces preset keys inside the store.
const keyPrefix = "preset:"

// Preset is one saved processor state.
type Preset struct {
	Name  string    `msgpack:"name"`
	Saved time.Time `msgpack:"saved"`
	State []byte    `msgpack:"state"`
}

// Store keeps presets by name.
type Store interface {
	// Get returns the preset with the given name, or ErrNotFound.
	Get(ctx context.Context, name string) (Preset, error)

	// Put stores p, replacing any preset with the same name.
	Put(ctx context.Context, p Preset) error

	// Delete removes a preset. Deleting a missing preset is not an error.
	Delete(ctx context.Context, name string) error

	// List iterates over all presets in name order.
	List(ctx context.Context) iter.Seq2[Preset, error]

	// Close releases any resources held by the store.
	Close() error
}

// ValidateName checks that name can be used as a preset name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsFunc(name, unicode.IsControl) {
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidName, name)
	}
	return nil
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

func encode(p Preset) ([]byte, error) {
	data, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("preset: encode %q: %w", p.Name, err)
	}
	return data, nil
}

func decode(data []byte) (Preset, error) {
	var p Preset
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("preset: decode: %w", err)
	}
	return p, nil
}

// Save stores state under name, stamped with the current time.
func Save(ctx context.Context, s Store, name string, state []byte) (Preset, error) {
	if err := ValidateName(name); err != nil {
		return Preset{}, err
	}
	p := Preset{Name: name, Saved: time.Now().UTC(), State: state}
	if err := s.Put(ctx, p); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Names collects the names of all presets in s.
func Names(ctx context.Context, s Store) ([]string, error) {
	var names []string
	for p, err := range s.List(ctx) {
		if err != nil {
			return nil, err
		}
		names = append(names, p.Name)
	}
	return names, nil
}
