// Command hrtf-render spatializes WAV files with an HRIR library.
//
// Usage:
//
//	hrtf-render render --library ./irs --azimuth 90 input.wav output.wav
//	hrtf-render render --automation flyby.yaml input.wav output.wav
//	hrtf-render inspect --rate 48000 ./irs
//	hrtf-render preset save --library ./irs --azimuth 270 left-wall
//	hrtf-render render --preset left-wall input.wav output.wav
//
// Without a library, or with a library that has no IRs for the input's
// sample rate, render falls back to stereo panning.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const appName = "hrtf-render"

var (
	verbose  bool
	storeDir string
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Binaural HRTF rendering of WAV files",
	Long: `hrtf-render places mono or stereo WAV audio at a virtual position
around the listener by convolving it with head-related impulse responses.

Commands:
  render    Spatialize a WAV file
  inspect   List the IRs a library provides for a sample rate
  preset    Save, show, list and delete named positions`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", defaultStoreDir(), "preset store directory")

	rootCmd.AddCommand(newRenderCmd(), newInspectCmd(), newPresetCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func defaultStoreDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(dir, appName, "presets")
}
