package main

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/paths"
	"tools.zach/dev/safesave/internal/reader"
	"tools.zach/dev/safesave/internal/saver"
)

// writeFlags holds the flags of the write command.
type writeFlags struct {
	from     string
	template string
	append   bool
	inPlace  bool
	text     bool
}

func newWriteCmd(a *app) *cobra.Command {
	var f writeFlags
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Save stdin (or --from) to a file atomically",
		Long: `Save content to a file so that readers see either the old or the new
content, never a mix. The content comes from stdin, from --from (any path
the read command accepts), or from a bundled template.

Paths matching save.in_place in the config are written in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrite(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "read content from this path or device URL instead of stdin")
	cmd.Flags().StringVar(&f.template, "template", "", "write a bundled template (editorconfig, gitattributes)")
	cmd.Flags().BoolVar(&f.append, "append", false, "append to the file in place")
	cmd.Flags().BoolVar(&f.inPlace, "in-place", false, "overwrite the file in place instead of replacing it")
	cmd.Flags().BoolVar(&f.text, "text", false, "write line endings in the platform convention")
	cmd.MarkFlagsMutuallyExclusive("from", "template")
	cmd.MarkFlagsMutuallyExclusive("append", "in-place")
	return cmd
}

func (a *app) runWrite(cmd *cobra.Command, target string, f writeFlags) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	src, err := a.writeSource(cmd, f)
	if err != nil {
		return err
	}

	mode := saver.WriteOnly
	abs, absErr := filepath.Abs(target)
	if absErr != nil {
		abs = target
	}
	switch {
	case f.append:
		mode = saver.Append
	case f.inPlace || cfg.IsInPlace(abs):
		mode = saver.ReadOnly | saver.Truncate
	}
	if f.text {
		mode |= saver.Text
	}

	s := saver.New(target, mode, a.saverOptions(cfg)...)
	defer s.Close()
	if _, err := io.Copy(s, src); err != nil && !s.HasError() {
		s.SetResult(fileerr.ReadIO("stdin", err))
	}
	if err := s.FinalizeReport(saver.LogReporter{}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.Path())
	return nil
}

// writeSource returns the content to save.
func (a *app) writeSource(cmd *cobra.Command, f writeFlags) (io.Reader, error) {
	switch {
	case f.template != "":
		r := a.newReader(a.cfg)
		data := r.ReadResource(paths.Template(f.template))
		if data == nil {
			return nil, fileerr.ResourceMissing(paths.Template(f.template))
		}
		return bytes.NewReader(data), nil
	case f.from != "":
		r := a.newReader(a.cfg)
		data, err := r.FetchContext(cmd.Context(), f.from, reader.ReadOnly)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	default:
		return cmd.InOrStdin(), nil
	}
}
