// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "serve.pid"
	ConfigFile = "config.toml"
	LogFile    = "safesave.log"
	SocketFile = "device.sock"
	MemDir     = "mem"
)

// Process-wide names.
const (
	BinaryName = "safesave"
	DataDirRel = ".safesave" // relative to $HOME
	PipeName   = "safesave-device"
)

// Bundled resource names, relative to the resource root.
const (
	DefaultConfigResource = "config.default.toml"
	TemplatesDir          = "templates"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the device server's PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Socket returns the full path to the device server's unix socket.
func (d DataDir) Socket() string { return filepath.Join(d.Root, SocketFile) }

// Mem returns the directory mirrored into the mem:// device at startup.
func (d DataDir) Mem() string { return filepath.Join(d.Root, MemDir) }

// Template returns the resource path of a bundled write template.
func Template(name string) string {
	return ":/" + TemplatesDir + "/" + name
}
