package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/fileid"
)

// unknownID is printed when a file's identity cannot be determined.
const unknownID = "-"

func newIDCmd(a *app) *cobra.Command {
	var dedupe bool
	cmd := &cobra.Command{
		Use:   "id <path>...",
		Short: "Print file identity keys",
		Long: `Print the identity key of each path, followed by a tab and the path.
Paths naming the same file (hard links, different spellings) share a key.
With --dedupe only the first path naming each file is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dedupe {
				args = fileid.Unique(args)
			}
			out := cmd.OutOrStdout()
			for _, p := range args {
				key := fileid.Key(p)
				if key == "" {
					key = unknownID
				}
				fmt.Fprintf(out, "%s\t%s\n", key, p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "print only the first path naming each file")
	return cmd
}
