package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	binaural "github.com/tphakala/go-binaural"
	"github.com/tphakala/go-binaural/internal/hrir"
)

const defaultInspectRate = 48000

var (
	primaryColor = lipgloss.Color("#00ff9f")
	dimColor     = lipgloss.Color("#6e7681")
	errorColor   = lipgloss.Color("#ff5f5f")
)

type inspectStyles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
	Error  lipgloss.Style
}

func newInspectStyles() inspectStyles {
	return inspectStyles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
		Header: lipgloss.NewStyle().Bold(true).Foreground(primaryColor).PaddingRight(2),
		Cell:   lipgloss.NewStyle().PaddingRight(2),
		Dim:    lipgloss.NewStyle().Foreground(dimColor),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(errorColor),
	}
}

func newInspectCmd() *cobra.Command {
	var rate float64

	cmd := &cobra.Command{
		Use:   "inspect [flags] library-root",
		Short: "List the IRs a library provides for a sample rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			root := args[0]

			status, err := libraryStatus(root, rate, log)
			if err != nil {
				return err
			}
			lib, err := hrir.Load(cmd.Context(), root, rate, hrir.WithLogger(log))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderInspect(status, lib, newInspectStyles()))
			return nil
		},
	}
	cmd.Flags().Float64Var(&rate, "rate", defaultInspectRate, "processing sample rate in Hz")
	return cmd
}

// libraryStatus prepares a processor on root the way render would and
// reports what it loaded.
func libraryStatus(root string, rate float64, log *slog.Logger) (binaural.LibraryStatus, error) {
	proc, err := binaural.New(&binaural.Config{Logger: log})
	if err != nil {
		return binaural.LibraryStatus{}, err
	}
	defer func() { _ = proc.Close() }()

	proc.SetLibraryRoot(root)
	if err := proc.Prepare(rate, defaultBlockSize); err != nil {
		return binaural.LibraryStatus{}, err
	}
	return proc.Status(), nil
}

// renderInspect formats a status line and one row per record.
func renderInspect(status binaural.LibraryStatus, lib *hrir.Library, st inspectStyles) string {
	var b strings.Builder

	line := st.Title.Render(status.Message())
	if status.State == binaural.StateInvalid {
		line = st.Error.Render(status.Message())
	}
	b.WriteString(line)
	b.WriteString("\n")
	b.WriteString(st.Dim.Render(fmt.Sprintf("bucket %s, %d IRs", status.Bucket, lib.Len())))

	if lib.Empty() {
		return b.String()
	}

	headers := []string{"AZIMUTH", "ELEVATION", "CHANNELS", "LENGTH", "RATE", "FILE"}
	rows := make([][]string, 0, lib.Len())
	for _, rec := range lib.Records() {
		rows = append(rows, []string{
			fmt.Sprintf("%g", rec.Azimuth),
			fmt.Sprintf("%g", rec.Elevation),
			fmt.Sprintf("%d", rec.Channels()),
			fmt.Sprintf("%d", rec.Length()),
			fmt.Sprintf("%g", rec.SampleRate),
			filepath.Base(rec.Path),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	renderRow := func(style lipgloss.Style, cells []string) string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = style.Width(widths[i] + style.GetPaddingRight()).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, out...)
	}

	b.WriteString("\n\n")
	b.WriteString(renderRow(st.Header, headers))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(st.Cell, row))
	}
	return b.String()
}
