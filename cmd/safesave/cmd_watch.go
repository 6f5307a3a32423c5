package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Report when another program replaces, modifies or removes a file",
		Long: `Print one line per change to path: the kind of change (replaced, modified,
removed, created), a tab, and the path. "replaced" means the path now names a
different file, which is what an atomic save by another program looks like.

Runs until interrupted, or until --count changes were printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := watch.New(args[0])
			if err != nil {
				return err
			}
			defer w.Close()

			sig := signalChannel()
			out := cmd.OutOrStdout()
			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case ev := <-w.Events():
					fmt.Fprintf(out, "%s\t%s\n", ev.Kind, ev.Path)
				case <-sig:
					return nil
				case <-cmd.Context().Done():
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many changes (0 runs until interrupted)")
	return cmd
}
