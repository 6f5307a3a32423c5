package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/saver"
)

// pathPlaceholder in a command argument is replaced with the temp file path.
const pathPlaceholder = "{}"

func newTempCmd(a *app) *cobra.Command {
	var (
		keep     bool
		template string
	)
	cmd := &cobra.Command{
		Use:   "temp [flags] [-- command [args...]]",
		Short: "Save stdin to a new temporary file",
		Long: `Save stdin to a new, uniquely named temporary file.

With a command, the command runs with the file path substituted for {} (or
appended when no argument is {}), and the file is removed afterwards unless
--keep or temp.keep is set. Without a command the file is kept and its path
printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTemp(cmd, args, template, keep)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the file after the command exits")
	cmd.Flags().StringVar(&template, "template", "", "file name template; the trailing X run is randomized (default temp.template)")
	return cmd
}

func (a *app) runTemp(cmd *cobra.Command, args []string, template string, keep bool) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if template == "" {
		template = cfg.Temp.Template
	}

	t := saver.NewTemp(template, a.saverOptions(cfg)...)
	t.SetAutoRemove(len(args) > 0 && !keep && !cfg.Temp.Keep)
	defer func() {
		if err := t.Close(); err != nil {
			slog.Warn("temp file cleanup failed", "path", t.Path(), "error", err)
		}
	}()

	if _, err := io.Copy(t, cmd.InOrStdin()); err != nil && !t.HasError() {
		t.SetResult(fileerr.ReadIO("stdin", err))
	}
	if err := t.FinalizeReport(saver.LogReporter{}); err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), t.Path())
		return nil
	}

	argv := substitutePath(args, t.Path())
	child := exec.CommandContext(cmd.Context(), argv[0], argv[1:]...)
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	slog.Debug("running command on temp file", "path", t.Path(), "command", argv[0])
	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &exitError{code: exitErr.ExitCode(), msg: fmt.Sprintf("%s: %v", argv[0], err)}
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}

// substitutePath replaces every {} argument with path, or appends path when
// there is none.
func substitutePath(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	found := false
	for _, arg := range args {
		if arg == pathPlaceholder {
			arg = path
			found = true
		}
		out = append(out, arg)
	}
	if !found {
		out = append(out, path)
	}
	return out
}
