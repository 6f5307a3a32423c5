// Package safesave provides embedded assets for the safesave tool.
//
// The root package exists solely to embed the bundled resource namespace.
// [Resources] holds config.default.toml and the templates directory; the
// reader package serves them under the ":/" prefix.
package safesave

import "embed"

// Resources is the bundled read-only resource namespace, embedded at build
// time. Names inside it are addressed as ":/config.default.toml",
// ":/templates/...", and so on.
//
//go:embed config.default.toml templates
var Resources embed.FS
