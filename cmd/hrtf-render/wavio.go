package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	monoChannels   = 1
	stereoChannels = 2

	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	// WAV header layout
	wavHeaderSize      = 44
	wavRiffHeaderSize  = 36 // file size - 8 = riffHeaderSize + dataSize
	wavPCMSubchunkSize = 16
	wavFileSizeOffset  = 4
	wavDataSizeOffset  = 40

	bytesPerSample16 = 2
	bytesPerSample24 = 3
	bytesPerSample32 = 4
	bitsPerByte      = 8

	bitShift8  = 8
	bitShift16 = 16

	wavWriterBufferSize = 256 * 1024
	uint32Size          = 4

	progressInterval = 10 // percent
	percentScale     = 100
)

// wavInput is an open, validated input file.
type wavInput struct {
	file        *os.File
	decoder     *wav.Decoder
	rate        int
	channels    int
	bitDepth    int
	totalFrames int64
	format      *audio.Format
}

// openWAVInput opens a mono or stereo WAV file.
func openWAVInput(path string, log *slog.Logger) (*wavInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	if format.NumChannels < monoChannels || format.NumChannels > stereoChannels {
		_ = f.Close()
		return nil, fmt.Errorf("unsupported channel count %d: input must be mono or stereo", format.NumChannels)
	}

	in := &wavInput{
		file:     f,
		decoder:  decoder,
		rate:     format.SampleRate,
		channels: format.NumChannels,
		bitDepth: int(decoder.BitDepth),
		format:   format,
	}
	if d, err := decoder.Duration(); err == nil {
		in.totalFrames = int64(d.Seconds() * float64(in.rate))
	}

	log.Debug("input format",
		"sample_rate", in.rate,
		"channels", in.channels,
		"bit_depth", in.bitDepth,
		"frames", in.totalFrames)
	return in, nil
}

func (w *wavInput) Close() error {
	return w.file.Close()
}

func maxValue(bitDepth int) float64 {
	switch bitDepth {
	case bitsPerSample24:
		return maxInt24
	case bitsPerSample32:
		return maxInt32
	default:
		return maxInt16
	}
}

// deinterleaveInto converts interleaved int samples into per-channel
// buffers scaled to [-1, 1].
func deinterleaveInto(data []int, channelBufs [][]float32, frames int, invMaxVal float64) {
	if len(channelBufs) == monoChannels {
		buf := channelBufs[0]
		for i := range frames {
			buf[i] = float32(float64(data[i]) * invMaxVal)
		}
		return
	}

	buf0, buf1 := channelBufs[0], channelBufs[1]
	for i := range frames {
		idx := i * stereoChannels
		buf0[i] = float32(float64(data[idx]) * invMaxVal)
		buf1[i] = float32(float64(data[idx+1]) * invMaxVal)
	}
}

// interleaveStereo clamps and converts two channels into dst and returns
// the number of elements written.
func interleaveStereo(left, right []float32, dst []int, maxVal float64) int {
	n := min(len(left), len(right), len(dst)/stereoChannels)
	for i := range n {
		dst[i*stereoChannels] = int(clampUnit(float64(left[i])) * maxVal)
		dst[i*stereoChannels+1] = int(clampUnit(float64(right[i])) * maxVal)
	}
	return n * stereoChannels
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// pcmWriter writes PCM data without per-sample allocations and patches the
// header sizes on Close.
type pcmWriter struct {
	w          *bufio.Writer
	f          *os.File
	sampleRate int
	bitDepth   int
	channels   int
	dataSize   uint32
	byteBuf    []byte
}

// createWAVOutput creates path and writes a placeholder header.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*pcmWriter, error) {
	switch bitDepth {
	case bitsPerSample16, bitsPerSample24, bitsPerSample32:
	default:
		return nil, fmt.Errorf("unsupported output bit depth %d", bitDepth)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := &pcmWriter{
		w:          bufio.NewWriterSize(f, wavWriterBufferSize),
		f:          f,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		channels:   channels,
	}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

func (w *pcmWriter) writeHeader() error {
	bytesPerSample := w.bitDepth / bitsPerByte
	byteRate := w.sampleRate * w.channels * bytesPerSample
	blockAlign := w.channels * bytesPerSample

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 0)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], wavPCMSubchunkSize)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(w.bitDepth))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], 0)

	_, err := w.w.Write(header)
	return err
}

// WriteSamples encodes interleaved samples at the writer's bit depth.
func (w *pcmWriter) WriteSamples(samples []int) error {
	width := w.bitDepth / bitsPerByte
	needed := len(samples) * width
	if len(w.byteBuf) < needed {
		w.byteBuf = make([]byte, needed)
	}
	buf := w.byteBuf[:needed]

	switch w.bitDepth {
	case bitsPerSample24:
		for i, s := range samples {
			buf[i*bytesPerSample24] = byte(s)
			buf[i*bytesPerSample24+1] = byte(s >> bitShift8)
			buf[i*bytesPerSample24+2] = byte(s >> bitShift16)
		}
	case bitsPerSample32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(buf[i*bytesPerSample32:], uint32(int32(s)))
		}
	default:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*bytesPerSample16:], uint16(int16(s)))
		}
	}

	written, err := w.w.Write(buf)
	w.dataSize += uint32(written)
	return err
}

// Close flushes buffered data, fills in the header sizes and closes the
// file.
func (w *pcmWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}

	sizeBytes := make([]byte, uint32Size)
	patch := func(offset int64, v uint32) error {
		if _, err := w.f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(sizeBytes, v)
		_, err := w.f.Write(sizeBytes)
		return err
	}

	if err := patch(wavFileSizeOffset, wavRiffHeaderSize+w.dataSize); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := patch(wavDataSizeOffset, w.dataSize); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// progressTracker logs progress every progressInterval percent.
type progressTracker struct {
	log          *slog.Logger
	totalFrames  int64
	lastProgress int
}

func newProgressTracker(totalFrames int64, log *slog.Logger) *progressTracker {
	return &progressTracker{log: log, totalFrames: totalFrames}
}

func (p *progressTracker) reportIfNeeded(frames int64) {
	if p.totalFrames == 0 {
		return
	}
	progress := int(float64(frames) / float64(p.totalFrames) * percentScale)
	if progress >= p.lastProgress+progressInterval {
		p.log.Debug("progress", "percent", progress)
		p.lastProgress = progress
	}
}
