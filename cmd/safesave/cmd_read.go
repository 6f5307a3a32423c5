package main

import (
	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/reader"
)

func newReadCmd(a *app) *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "read <path>...",
		Short: "Print files, device URLs or bundled resources",
		Long: `Print the contents of each path. A path may be a local file, a device
URL (http://, https://, ipc://, mem:// or a configured sandbox scheme), or a
bundled resource such as :/templates/editorconfig.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			mode := reader.ReadOnly
			if text {
				mode |= reader.Text
			}
			r := a.newReader(cfg)
			out := cmd.OutOrStdout()
			for _, p := range args {
				data, err := r.FetchContext(cmd.Context(), p, mode)
				if err != nil {
					return err
				}
				if _, err := out.Write(data); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "convert CRLF line endings to LF")
	return cmd
}
