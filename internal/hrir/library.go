package hrir

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/go-binaural/internal/geometry"
)

// Sample-rate bucket directory names.
const (
	Bucket44k = "44K_16bit"
	Bucket48k = "48K_24bit"
	Bucket96k = "96K_24bit"

	bucket44kMaxRate = 44100.0
	bucket48kMaxRate = 48000.0

	irExtension = ".wav"
)

// BucketFor selects the bucket sub-directory for a processing sample rate.
func BucketFor(sampleRate float64) string {
	switch {
	case sampleRate <= bucket44kMaxRate:
		return Bucket44k
	case sampleRate <= bucket48kMaxRate:
		return Bucket48k
	default:
		return Bucket96k
	}
}

// Library is the set of IR records for one sample-rate bucket. A Library is
// never modified after Load returns; a new load builds a new Library.
type Library struct {
	root       string
	bucket     string
	sampleRate float64
	records    []*Record
}

// Option configures Load.
type Option func(*loadConfig)

type loadConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report skipped files and load results.
func WithLogger(l *slog.Logger) Option {
	return func(c *loadConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Load reads every IR in the bucket matching sampleRate under root.
//
// A missing root, a missing bucket, or a bucket without WAV files yields an
// empty library and a nil error: an empty library is how callers learn to
// fall back to panning. Files that cannot be decoded are skipped. The only
// error returned is ctx's.
func Load(ctx context.Context, root string, sampleRate float64, opts ...Option) (*Library, error) {
	cfg := loadConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger

	lib := &Library{
		root:       root,
		bucket:     BucketFor(sampleRate),
		sampleRate: sampleRate,
	}

	if root == "" {
		return lib, nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		log.Debug("HRIR root is not a directory", "root", root)
		return lib, nil
	}

	dir := filepath.Join(root, lib.bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug("HRIR bucket directory not found", "dir", dir)
		return lib, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), irExtension) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rec, err := loadRecord(path)
		if err != nil {
			log.Debug("skipping unreadable IR file", "path", path, "error", err)
			continue
		}
		lib.records = append(lib.records, rec)
	}

	if len(lib.records) == 0 {
		log.Debug("no IR files found", "dir", dir)
		return lib, nil
	}

	log.Info("cached HRIR files", "count", len(lib.records), "bucket", lib.bucket, "root", root)
	return lib, nil
}

func loadRecord(path string) (*Record, error) {
	samples, rate, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	az, el := ParseDirection(path)
	return &Record{
		Azimuth:    az,
		Elevation:  el,
		SampleRate: rate,
		Samples:    samples,
		Path:       path,
	}, nil
}

// NewLibrary builds a library from already decoded records. It is used by
// tests and by callers that synthesise IRs instead of reading them.
func NewLibrary(root string, sampleRate float64, records []*Record) *Library {
	recs := make([]*Record, len(records))
	copy(recs, records)
	return &Library{
		root:       root,
		bucket:     BucketFor(sampleRate),
		sampleRate: sampleRate,
		records:    recs,
	}
}

// Root returns the directory the library was loaded from.
func (l *Library) Root() string { return l.root }

// Bucket returns the bucket sub-directory name.
func (l *Library) Bucket() string { return l.bucket }

// SampleRate returns the processing sample rate the bucket was chosen for.
func (l *Library) SampleRate() float64 { return l.sampleRate }

// Len returns the number of records.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.records)
}

// Empty reports whether the library has no records.
func (l *Library) Empty() bool { return l.Len() == 0 }

// Record returns the i-th record in load order.
func (l *Library) Record(i int) *Record { return l.records[i] }

// Records returns the records in load order. The slice must not be modified.
func (l *Library) Records() []*Record {
	if l == nil {
		return nil
	}
	return l.records
}

// BestMatchIndex returns the index of the record closest to the requested
// direction, or -1 when the library is empty.
//
// Distance is circular azimuth distance plus absolute elevation difference.
// Only a strictly smaller distance replaces the current best, so exact ties
// go to the earliest record in load order.
func (l *Library) BestMatchIndex(azimuth, elevation float64) int {
	best := -1
	bestDist := 0.0
	for i, r := range l.Records() {
		d := geometry.CircularDistance(r.Azimuth, azimuth) + math.Abs(r.Elevation-elevation)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// FindBestMatch returns the record closest to the requested direction.
// The boolean is false iff the library is empty.
func (l *Library) FindBestMatch(azimuth, elevation float64) (*Record, bool) {
	i := l.BestMatchIndex(azimuth, elevation)
	if i < 0 {
		return nil, false
	}
	return l.records[i], true
}
