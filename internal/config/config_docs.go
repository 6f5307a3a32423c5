package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "save.file_mode")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Save ─────────────────────────────────────────────────────
	"save.file_mode": {
		Comment: "Permission bits for newly created files (octal).\nExisting files keep their permissions when replaced.",
		Alternatives: []string{
			`file_mode = "0600"`,
		},
	},
	"save.reserved_names": {
		Comment: "Refuse to save to Windows device names (CON, PRN, AUX, NUL, COM1-9, LPT1-9).\nOptions: \"auto\", \"always\", \"never\"\n  auto:   check only when running on Windows\n  always: check everywhere, useful for files shared with Windows machines\n  never:  do not check",
		Alternatives: []string{
			`reserved_names = "always"`,
			`reserved_names = "never"`,
		},
	},
	"save.in_place": {
		Comment: "Paths written in place instead of through a temporary file and rename.\nUse for files whose identity must not change (hard links, open handles held\nby other programs). A failed in-place save can leave the file partially written.\nGlob patterns supported (** matches across directories), matched with forward slashes.",
		Alternatives: []string{
			`in_place = ["/home/me/.ssh/authorized_keys", "/**/shared/*.db"]`,
		},
	},

	// ── Temp ─────────────────────────────────────────────────────
	"temp.dir": {
		Comment: "Directory for anonymous temporary files. Empty uses the system default.",
		Alternatives: []string{
			`dir = "/var/tmp"`,
		},
	},
	"temp.template": {
		Comment: "File name pattern. The trailing run of X is replaced with random characters.",
	},
	"temp.keep": {
		Comment: "Keep temporary files after they are closed instead of removing them.",
	},

	// ── Read ─────────────────────────────────────────────────────
	"read.http_retry_max": {
		Comment: "Retries for http:// and https:// reads after the first attempt.",
	},
	"read.http_timeout_seconds": {
		Comment: "Timeout for each HTTP attempt (seconds).",
	},
	"read.ipc_endpoint": {
		Comment: "Socket path (Unix) or pipe name (Windows) for ipc:// reads.\nEmpty uses the endpoint of `safesave serve` in the data directory.",
		Alternatives: []string{
			`ipc_endpoint = "/run/user/1000/safesave.sock"`,
		},
	},
	"read.sandboxes": {
		Comment: "Extra read-only schemes mapped to directories.\nA path like site://index.html reads <root>/index.html and cannot escape root.",
		Alternatives: []string{
			`[read.sandboxes]`,
			`site = "/srv/www"`,
			`notes = "/home/me/notes"`,
		},
	},

	// ── Serve ────────────────────────────────────────────────────
	"serve.root": {
		Comment: "Directory served read-only to ipc:// readers by `safesave serve`.\nEmpty serves the directory the server was started in.",
		Alternatives: []string{
			`root = "/srv/shared"`,
		},
	},

	// ── Sections ─────────────────────────────────────────────────
	"save": {
		Comment: "How files are saved",
	},
	"temp": {
		Comment: "Anonymous temporary files (safesave temp)",
	},
	"read": {
		Comment: "Device URLs accepted by safesave read and write --from",
	},
	"serve": {
		Comment: "The ipc:// server (safesave serve)",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
