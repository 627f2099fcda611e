package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	binaural "github.com/tphakala/go-binaural"
	"github.com/tphakala/go-binaural/internal/preset"
)

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved positions",
	}
	cmd.AddCommand(newPresetSaveCmd(), newPresetShowCmd(), newPresetListCmd(), newPresetDeleteCmd())
	return cmd
}

// withStore opens the preset store for the duration of fn.
func withStore(fn func(preset.Store) error) error {
	store, err := openPresetStore(storeDir, newLogger())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func newPresetSaveCmd() *cobra.Command {
	var (
		library       string
		az, el, width float64
	)
	cmd := &cobra.Command{
		Use:   "save [flags] name",
		Short: "Save a position and library as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := renderOptions{library: library}
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
			return withStore(func(s preset.Store) error {
				p, err := savePreset(cmd.Context(), s, args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q\n", p.Name)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&library, "library", "", "HRIR library root")
	f.Float64Var(&az, "azimuth", 0, "source azimuth in degrees [0, 360]")
	f.Float64Var(&el, "elevation", 0, "source elevation in degrees [-90, 90]")
	f.Float64Var(&width, "width", 0, "ear spread in percent [0, 100]")
	return cmd
}

func newPresetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show name",
		Short: "Show a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s preset.Store) error {
				return showPreset(cmd.Context(), cmd.OutOrStdout(), s, args[0])
			})
		},
	}
}

func newPresetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(s preset.Store) error {
				return listPresets(cmd.Context(), cmd.OutOrStdout(), s)
			})
		},
	}
}

func newPresetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete name",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s preset.Store) error {
				return s.Delete(cmd.Context(), args[0])
			})
		},
	}
}

// savePreset captures the processor state opts describes under name.
func savePreset(ctx context.Context, s preset.Store, name string, opts renderOptions) (preset.Preset, error) {
	proc, err := binaural.New(&binaural.Config{Logger: newLogger()})
	if err != nil {
		return preset.Preset{}, err
	}
	defer func() { _ = proc.Close() }()

	if err := opts.configure(proc); err != nil {
		return preset.Preset{}, err
	}
	state, err := proc.SaveState()
	if err != nil {
		return preset.Preset{}, err
	}
	return preset.Save(ctx, s, name, state)
}

func showPreset(ctx context.Context, w io.Writer, s preset.Store, name string) error {
	p, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	state, err := binaural.UnmarshalState(p.State)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (saved %s)\n", p.Name, p.Saved.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  azimuth:   %g\n", state.Azimuth)
	fmt.Fprintf(w, "  elevation: %g\n", state.Elevation)
	fmt.Fprintf(w, "  width:     %g\n", state.Width)
	fmt.Fprintf(w, "  library:   %s\n", state.LibraryRoot)
	return nil
}

func listPresets(ctx context.Context, w io.Writer, s preset.Store) error {
	for p, err := range s.List(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-24s %s\n", p.Name, p.Saved.Local().Format(time.DateTime))
	}
	return nil
}
