package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/cobra"

	binaural "github.com/tphakala/go-binaural"
	"github.com/tphakala/go-binaural/internal/preset"
)

const (
	defaultBlockSize = 512
	defaultBitDepth  = bitsPerSample16
)

// renderOptions configures one render. Nil controls keep whatever the
// preset or automation set.
type renderOptions struct {
	library    string
	azimuth    *float64
	elevation  *float64
	width      *float64
	partition  int
	blockSize  int
	bitDepth   int
	automation *Automation
	state      []byte // processor state from a preset
	keepDelay  bool
}

type renderStats struct {
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64
	latency    int
	status     binaural.LibraryStatus
}

func newRenderCmd() *cobra.Command {
	var (
		opts           renderOptions
		az, el, width  float64
		automationPath string
		presetName     string
	)

	cmd := &cobra.Command{
		Use:   "render [flags] input.wav output.wav",
		Short: "Spatialize a WAV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			flags := cmd.Flags()
			if flags.Changed("azimuth") {
				opts.azimuth = &az
			}
			if flags.Changed("elevation") {
				opts.elevation = &el
			}
			if flags.Changed("width") {
				opts.width = &width
			}

			if automationPath != "" {
				a, err := loadAutomation(automationPath)
				if err != nil {
					return err
				}
				opts.automation = a
			}

			if presetName != "" {
				store, err := openPresetStore(storeDir, log)
				if err != nil {
					return err
				}
				p, err := store.Get(cmd.Context(), presetName)
				_ = store.Close()
				if err != nil {
					return err
				}
				opts.state = p.State
			}

			start := time.Now()
			stats, err := renderFile(cmd.Context(), args[0], args[1], opts, log)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendered %s -> %s\n", filepath.Base(args[0]), filepath.Base(args[1]))
			fmt.Fprintf(out, "  %d Hz, %d -> 2 channels, %d-bit\n", stats.sampleRate, stats.channels, stats.bitDepth)
			fmt.Fprintf(out, "  %s\n", stats.status.Message())
			if seconds := elapsed.Seconds(); seconds > 0 {
				fmt.Fprintf(out, "  %d frames, latency %d, %.1fx realtime\n",
					stats.frames, stats.latency,
					float64(stats.frames)/float64(stats.sampleRate)/seconds)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.library, "library", "", "HRIR library root")
	f.Float64Var(&az, "azimuth", 0, "source azimuth in degrees [0, 360]")
	f.Float64Var(&el, "elevation", 0, "source elevation in degrees [-90, 90]")
	f.Float64Var(&width, "width", 0, "ear spread in percent [0, 100]")
	f.IntVar(&opts.partition, "partition", binaural.DefaultPartitionSize, "convolution partition size (power of two)")
	f.IntVar(&opts.blockSize, "block", defaultBlockSize, "processing block size in frames")
	f.IntVar(&opts.bitDepth, "bits", 0, "output bit depth: 16, 24 or 32 (default: input's)")
	f.StringVar(&automationPath, "automation", "", "YAML automation file")
	f.StringVar(&presetName, "preset", "", "start from a saved preset")
	f.BoolVar(&opts.keepDelay, "keep-delay", false, "keep the processing delay instead of trimming it")
	return cmd
}

// configure applies preset state, automation and explicit options to p,
// in that order.
func (o *renderOptions) configure(p *binaural.Processor) error {
	if o.state != nil {
		if err := p.LoadState(o.state); err != nil {
			return err
		}
	}
	if o.automation != nil {
		o.automation.applyInitial(p)
		if o.automation.Library != "" {
			p.SetLibraryRoot(o.automation.Library)
		}
	}
	if o.library != "" {
		p.SetLibraryRoot(o.library)
	}
	setIfPresent(p, binaural.ParamAzimuth, o.azimuth)
	setIfPresent(p, binaural.ParamElevation, o.elevation)
	setIfPresent(p, binaural.ParamWidth, o.width)
	return nil
}

// renderFile spatializes inputPath into a stereo WAV at outputPath.
func renderFile(ctx context.Context, inputPath, outputPath string, opts renderOptions, log *slog.Logger) (stats *renderStats, err error) {
	if opts.blockSize <= 0 {
		opts.blockSize = defaultBlockSize
	}

	input, err := openWAVInput(inputPath, log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	proc, err := binaural.New(&binaural.Config{PartitionSize: opts.partition, Logger: log})
	if err != nil {
		return nil, err
	}
	defer func() { _ = proc.Close() }()

	if err := opts.configure(proc); err != nil {
		return nil, err
	}
	if err := proc.Prepare(float64(input.rate), opts.blockSize); err != nil {
		return nil, err
	}
	if err := proc.WaitIdle(ctx); err != nil {
		return nil, err
	}

	bitDepth := opts.bitDepth
	if bitDepth == 0 {
		bitDepth = input.bitDepth
		if bitDepth != bitsPerSample24 && bitDepth != bitsPerSample32 {
			bitDepth = defaultBitDepth
		}
	}

	output, err := createWAVOutput(outputPath, input.rate, bitDepth, stereoChannels)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := output.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finalize output: %w", closeErr)
		}
	}()

	r := newRenderLoop(proc, input, output, opts, bitDepth, log)
	if err := r.run(ctx); err != nil {
		return nil, err
	}

	return &renderStats{
		sampleRate: input.rate,
		channels:   input.channels,
		bitDepth:   bitDepth,
		frames:     r.framesIn,
		latency:    proc.Latency(),
		status:     proc.Status(),
	}, nil
}

// renderLoop streams blocks from a decoder through the processor into a
// writer.
type renderLoop struct {
	proc     *binaural.Processor
	input    *wavInput
	output   *pcmWriter
	cursor   *automationCursor
	progress *progressTracker

	intBuf    *audio.IntBuffer
	src       [][]float32
	dst       [][]float32
	srcView   [][]float32
	dstView   [][]float32
	outInts   []int
	invMaxIn  float64
	maxOut    float64
	blockSize int

	keepDelay bool
	skip      int  // output frames still to drop
	delaySet  bool // skip has been taken from the processor latency
	framesIn  int64
}

func newRenderLoop(proc *binaural.Processor, input *wavInput, output *pcmWriter, opts renderOptions, bitDepth int, log *slog.Logger) *renderLoop {
	n := opts.blockSize
	r := &renderLoop{
		proc:      proc,
		input:     input,
		output:    output,
		cursor:    newAutomationCursor(opts.automation),
		progress:  newProgressTracker(input.totalFrames, log),
		intBuf:    &audio.IntBuffer{Data: make([]int, n*input.channels), Format: input.format},
		src:       make([][]float32, input.channels),
		dst:       [][]float32{make([]float32, n), make([]float32, n)},
		srcView:   make([][]float32, input.channels),
		dstView:   make([][]float32, stereoChannels),
		outInts:   make([]int, n*stereoChannels),
		invMaxIn:  1 / maxValue(input.bitDepth),
		maxOut:    maxValue(bitDepth),
		blockSize: n,
		keepDelay: opts.keepDelay,
	}
	for ch := range r.src {
		r.src[ch] = make([]float32, n)
	}
	return r
}

func (r *renderLoop) run(ctx context.Context) error {
	rate := float64(r.input.rate)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.intBuf.Data = r.intBuf.Data[:cap(r.intBuf.Data)]
		n, err := r.input.decoder.PCMBuffer(r.intBuf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read audio data: %w", err)
		}
		frames := n / r.input.channels
		if frames == 0 {
			break
		}

		deinterleaveInto(r.intBuf.Data[:n], r.src, frames, r.invMaxIn)
		r.cursor.advance(r.proc, float64(r.framesIn)/rate)
		if err := r.processBlock(frames); err != nil {
			return err
		}
		r.framesIn += int64(frames)
		r.progress.reportIfNeeded(r.framesIn)
	}

	return r.drain()
}

// drain feeds silence until the delayed tail has been written.
func (r *renderLoop) drain() error {
	if r.keepDelay {
		return nil
	}
	for ch := range r.src {
		clear(r.src[ch])
	}
	remaining := r.proc.Latency()
	for remaining > 0 {
		frames := min(remaining, r.blockSize)
		if err := r.processBlock(frames); err != nil {
			return err
		}
		remaining -= frames
	}
	return nil
}

func (r *renderLoop) processBlock(frames int) error {
	for ch := range r.src {
		r.srcView[ch] = r.src[ch][:frames]
	}
	for ch := range r.dst {
		r.dstView[ch] = r.dst[ch][:frames]
	}
	dst := r.dstView
	if err := r.proc.Process(dst, r.srcView); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	if !r.delaySet {
		r.delaySet = true
		if !r.keepDelay {
			r.skip = r.proc.Latency()
		}
	}

	start := min(r.skip, frames)
	r.skip -= start
	if start == frames {
		return nil
	}

	written := interleaveStereo(dst[0][start:], dst[1][start:], r.outInts, r.maxOut)
	if err := r.output.WriteSamples(r.outInts[:written]); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return nil
}

// openPresetStore opens the on-disk preset store.
func openPresetStore(dir string, log *slog.Logger) (preset.Store, error) {
	if dir == "" {
		return nil, errors.New("preset store directory is not set")
	}
	return preset.NewBadger(preset.BadgerOptions{Dir: dir, Logger: log})
}
