// Package configs provides the embedded configuration template for aarag.
//
// The template is embedded at build time so `aarag config init` can write a
// commented starter file regardless of how the binary was installed.
package configs

import _ "embed"

// ConfigTemplate is the commented starter configuration written by
// `aarag config init` to ~/.aarag/config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string
