package binaural

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/tphakala/go-binaural/internal/hrir"
	"github.com/tphakala/go-binaural/internal/kernel"
	"github.com/tphakala/go-binaural/internal/spatial"
)

// snapshot is an immutable library published to the audio path.
type snapshot struct {
	id     uuid.UUID
	root   string
	bank   *spatial.Bank
	status LibraryStatus
}

// kernels returns the snapshot's kernel bank. A nil snapshot has none.
func (s *snapshot) kernels() *spatial.Bank {
	if s == nil {
		return nil
	}
	return s.bank
}

func newEmptySnapshot(root string, sampleRate float64) *snapshot {
	id := uuid.New()
	state := StateNoFolder
	if root != "" {
		if _, err := os.Stat(root); err == nil {
			state = StateInvalid
		}
	}
	return &snapshot{
		id:   id,
		root: root,
		status: LibraryStatus{
			State:      state,
			Root:       root,
			Bucket:     hrir.BucketFor(sampleRate),
			SnapshotID: id,
		},
	}
}

// buildSnapshot loads the library under root and prepares a kernel for
// every record. Records whose kernel cannot be prepared are dropped.
func (p *Processor) buildSnapshot(ctx context.Context, root string, sampleRate float64) (*snapshot, error) {
	snap := newEmptySnapshot(root, sampleRate)
	if snap.status.State == StateNoFolder {
		return snap, nil
	}

	lib, err := hrir.Load(ctx, root, sampleRate, hrir.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	if lib.Empty() {
		return snap, nil
	}

	builder, err := kernel.NewBuilder(kernel.Config{
		SampleRate:    sampleRate,
		PartitionSize: p.cfg.PartitionSize,
		MaxLength:     p.cfg.MaxKernelLength,
	})
	if err != nil {
		return nil, err
	}

	built, kernels, err := builder.BuildAll(ctx, lib, func(rec *hrir.Record, err error) {
		p.logger.Debug("skipping IR", "path", rec.Path, "error", err)
	})
	if err != nil {
		return nil, err
	}

	bank, err := spatial.NewBank(built, kernels)
	if err != nil {
		return nil, err
	}

	snap.bank = bank
	snap.status.Count = bank.Len()
	if bank.Len() > 0 {
		snap.status.State = StateLoaded
	}
	return snap, nil
}

// publish makes snap visible to the audio path unless a newer request has
// been made since generation gen was taken.
func (p *Processor) publish(gen uint64, snap *snapshot) bool {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if gen != p.generation.Load() {
		return false
	}
	p.snapshot.Store(snap)
	return true
}

// runLoad executes one background load request.
func (p *Processor) runLoad(ctx context.Context, req loadRequest) {
	if req.generation != p.generation.Load() {
		return
	}

	log := p.logger.With("root", req.root, "sample_rate", req.sampleRate)
	log.Debug("loading HRIR library")

	snap, err := p.buildSnapshot(ctx, req.root, req.sampleRate)
	if errors.Is(err, context.Canceled) {
		log.Debug("HRIR library load abandoned")
		return
	}
	if err != nil {
		log.Warn("HRIR library load failed", "error", err)
		return
	}

	if !p.publish(req.generation, snap) {
		log.Debug("HRIR library load superseded", "snapshot", snap.id)
		return
	}
	log.Info("HRIR library published",
		"snapshot", snap.id,
		"state", snap.status.State,
		"count", snap.status.Count)
}

type loadRequest struct {
	generation uint64
	root       string
	sampleRate float64
}

// loader runs load requests on one goroutine. Its queue holds a single
// request; submitting replaces any request still waiting.
type loader struct {
	requests chan loadRequest
	run      func(context.Context, loadRequest)
	cancel   context.CancelFunc
	done     chan struct{}

	submitMu sync.Mutex

	mu      sync.Mutex
	pending int
	idle    chan struct{} // closed while pending == 0
}

func newLoader(run func(context.Context, loadRequest)) *loader {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	l := &loader{
		requests: make(chan loadRequest, loaderRequestQueue),
		run:      run,
		cancel:   cancel,
		done:     make(chan struct{}),
		idle:     idle,
	}
	go l.loop(ctx)
	return l
}

func (l *loader) loop(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.requests:
			l.run(ctx, req)
			l.finish()
		}
	}
}

func (l *loader) submit(req loadRequest) {
	l.submitMu.Lock()
	defer l.submitMu.Unlock()

	l.mu.Lock()
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
	l.mu.Unlock()

	for {
		select {
		case l.requests <- req:
			return
		default:
		}
		// Drop the queued request; the new one supersedes it.
		select {
		case <-l.requests:
			l.finish()
		default:
		}
	}
}

func (l *loader) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}

func (l *loader) waitIdle(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for HRIR loader: %w", ctx.Err())
	}
}

func (l *loader) close() {
	l.cancel()
	<-l.done
}
