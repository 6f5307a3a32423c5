package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tools.zach/dev/safesave/internal/device/ipc"
)

func newServeCmd(a *app) *cobra.Command {
	var root, endpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory read-only to ipc:// readers",
		Long: `Serve a directory to other processes. A reader configured with the same
endpoint reads ipc://name as <root>/name. Paths cannot escape the root and
nothing can be written through the server.

Only one server runs per data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, root, endpoint)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "directory to serve (default serve.root, then the working directory)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "socket path or pipe name (default read.ipc_endpoint, then the data directory socket)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, root, endpoint string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	data := a.data()

	if alive, pid := checkStalePID(data); alive {
		return &exitError{code: exitRunning, msg: fmt.Sprintf("server already running (pid %d)", pid)}
	}

	if root == "" {
		root = cfg.Serve.Root
	}
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	if info, statErr := os.Stat(root); statErr != nil {
		return fmt.Errorf("serve root: %w", statErr)
	} else if !info.IsDir() {
		return fmt.Errorf("serve root %s is not a directory", root)
	}

	if endpoint == "" {
		endpoint = cfg.Read.IPCEndpoint
	}
	if endpoint == "" {
		endpoint = ipc.DefaultEndpoint(data.Root)
	}

	token := pidToken()
	pidFile, err := writePID(data, token)
	if err != nil {
		return err
	}
	defer removePID(data, token, pidFile)

	l, err := ipc.Listen(endpoint)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", endpoint, err)
	}

	srv := ipc.NewServer(afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), root)))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	slog.Info("serving", "root", root, "endpoint", endpoint, "pid", os.Getpid())
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", root, endpoint)

	sig := signalChannel()
	select {
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	case <-cmd.Context().Done():
		slog.Info("shutting down", "reason", cmd.Context().Err())
	case err := <-done:
		return err
	}

	l.Close()
	srv.CloseConns()
	return <-done
}
