// Package file provides the TOML configuration file adapter used by the
// config commands.
package file
