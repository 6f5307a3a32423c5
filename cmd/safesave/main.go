// Package main implements the safesave command, which saves files so that
// readers only ever see the complete old or the complete new content, reads
// files from local disk and read devices, and serves a directory to other
// processes over the IPC device.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	rootpkg "tools.zach/dev/safesave"
	"tools.zach/dev/safesave/internal/config"
	"tools.zach/dev/safesave/internal/device/aferodev"
	"tools.zach/dev/safesave/internal/device/httpdev"
	"tools.zach/dev/safesave/internal/device/ipc"
	"tools.zach/dev/safesave/internal/fileerr"
	"tools.zach/dev/safesave/internal/logger"
	"tools.zach/dev/safesave/internal/paths"
	"tools.zach/dev/safesave/internal/reader"
	"tools.zach/dev/safesave/internal/saver"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version can be set with -ldflags "-X main.version=...". When it is left
// at "dev", resolveVersion reads the VCS info that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string, falling back to a
// "dev+<hash>" tag built from embedded VCS info.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Exit Codes
// ///////////////////////////////////////////////

// Exit codes.
const (
	exitFailure   = 1
	exitFileError = 2
	exitRunning   = 3
)

// ExitCoder is implemented by errors that choose the process exit status.
type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	var fe *fileerr.Error
	if errors.As(err, &fe) {
		return exitFileError
	}
	return exitFailure
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// app holds state shared by every subcommand for one invocation.
type app struct {
	// dataDir is the directory holding config, logs and the PID file.
	dataDir string
	// verbose echoes debug logging to stderr.
	verbose bool

	// cfg is the loaded configuration; defaults when loading failed.
	cfg *config.Config
	// cfgErr is the configuration load failure, reported by [app.config].
	cfgErr error

	// closers run in reverse order when the command ends.
	closers []io.Closer
	// prevLogger is restored as the slog default by teardown.
	prevLogger *slog.Logger
}

// defaultDataDir returns the platform default directory for safesave data,
// typically ~/.safesave. Falls back to ./.safesave if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Crash-safe file saving and reading",
		Version:       resolveVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", defaultDataDir(), "data directory for config, logs and the server PID file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "echo debug logging to stderr")

	cmd.AddCommand(newWriteCmd(a))
	cmd.AddCommand(newReadCmd(a))
	cmd.AddCommand(newTempCmd(a))
	cmd.AddCommand(newIDCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newLogCmd(a))

	a.wrapTeardown(cmd)
	return cmd
}

// wrapTeardown makes every runnable command release the app's resources
// when it returns. PersistentPostRun is skipped on error, so it cannot be
// used for this.
func (a *app) wrapTeardown(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.teardown()
			return run(cmd, args)
		}
	}
	for _, sub := range cmd.Commands() {
		a.wrapTeardown(sub)
	}
}

// ///////////////////////////////////////////////
// Setup
// ///////////////////////////////////////////////

// data returns the path helper for the data directory.
func (a *app) data() paths.DataDir { return paths.DataDir{Root: a.dataDir} }

// setup creates the data directory, writes a default config on first run,
// loads the config and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	data := a.data()
	if err := os.MkdirAll(data.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if _, err := os.Stat(data.Config()); errors.Is(err, fs.ErrNotExist) {
		if writeErr := writeDefaultConfig(data.Config()); writeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to write default config: %v\n", writeErr)
		}
	}

	a.cfg, a.cfgErr = config.Load(data.Root)
	if a.cfgErr != nil {
		a.cfg = config.DefaultConfig()
	}

	consoleLevel := logger.LevelWarn
	if a.verbose {
		consoleLevel = logger.LevelDebug
	}
	log, closer, err := logger.New(logger.Options{
		Path:         data.Log(),
		Level:        logger.ParseLevel(a.cfg.Log.Level),
		MaxSizeMB:    a.cfg.Log.MaxSizeMB,
		Console:      cmd.ErrOrStderr(),
		ConsoleLevel: consoleLevel,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.closers = append(a.closers, closer)
	a.prevLogger = slog.Default()
	slog.SetDefault(log)
	slog.Debug("command starting", "command", cmd.Name(), "version", resolveVersion(), "data_dir", data.Root)
	return nil
}

// teardown restores the default logger and releases everything registered
// in closers.
func (a *app) teardown() {
	if a.prevLogger != nil {
		slog.SetDefault(a.prevLogger)
		a.prevLogger = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// config returns the loaded configuration, or the load failure.
func (a *app) config() (*config.Config, error) {
	if a.cfgErr != nil {
		return nil, fmt.Errorf("load config: %w", a.cfgErr)
	}
	return a.cfg, nil
}

// saverOptions translates the [save] and [temp] settings.
func (a *app) saverOptions(cfg *config.Config) []saver.Option {
	opts := []saver.Option{
		saver.WithPerm(cfg.FilePerm()),
		saver.WithReservedNameCheck(cfg.CheckReservedNames()),
	}
	if cfg.Temp.Dir != "" {
		opts = append(opts, saver.WithTempDir(cfg.Temp.Dir))
	}
	return opts
}

// ///////////////////////////////////////////////
// Reader Wiring
// ///////////////////////////////////////////////

// newReader builds a reader with the bundled resources and every device
// the config enables.
func (a *app) newReader(cfg *config.Config) *reader.Reader {
	opts := []reader.Option{reader.WithResources(rootpkg.Resources)}

	web := httpdev.New(httpdev.Options{
		RetryMax: cfg.Read.HTTPRetryMax,
		Timeout:  cfg.HTTPTimeout(),
	})
	opts = append(opts, reader.WithDevice("http", web), reader.WithDevice("https", web))

	endpoint := cfg.Read.IPCEndpoint
	if endpoint == "" {
		endpoint = ipc.DefaultEndpoint(a.dataDir)
	}
	client := ipc.NewClient(endpoint)
	a.closers = append(a.closers, client)
	opts = append(opts, reader.WithDevice("ipc", client))

	opts = append(opts, reader.WithDevice("mem", aferodev.New(mirrorMem(a.data().Mem()))))

	for scheme, root := range cfg.Read.Sandboxes {
		opts = append(opts, reader.WithDevice(scheme, aferodev.NewSandbox(root)))
	}
	return reader.New(opts...)
}

// mirrorMem copies dir into a fresh in-memory filesystem so mem:// reads
// see a snapshot taken at startup. A missing dir gives an empty device.
func mirrorMem(dir string) afero.Fs {
	mem := afero.NewMemMapFs()
	disk := afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
	err := afero.Walk(disk, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return mem.MkdirAll(p, 0o755)
		}
		data, err := afero.ReadFile(disk, p)
		if err != nil {
			return err
		}
		return afero.WriteFile(mem, p, data, info.Mode().Perm())
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("mem device snapshot incomplete", "dir", dir, "error", err)
	}
	return mem
}

// ///////////////////////////////////////////////
// Default Config
// ///////////////////////////////////////////////

// writeDefaultConfig saves the bundled default config to path.
func writeDefaultConfig(path string) error {
	r := reader.New(reader.WithResources(rootpkg.Resources))
	data := r.ReadResource(reader.ResourcePrefix + paths.DefaultConfigResource)
	if data == nil {
		return fileerr.ResourceMissing(reader.ResourcePrefix + paths.DefaultConfigResource)
	}
	s := saver.New(path, saver.WriteOnly, saver.WithReservedNameCheck(false))
	defer s.Close()
	s.Write(data)
	return s.Finalize()
}
