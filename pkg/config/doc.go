// Package config loads and validates the CLI configuration file. The
// file is YAML and every field has a working default, so a missing file
// is not an error.
package config
