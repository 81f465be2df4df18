// Package configs provides embedded configuration templates for NeuralFS.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in every distribution: source builds, binary
// releases, and package-manager installs.
//
// The templates are used by:
//   - cmd/neuralfsd/cmd/init.go → creates .neuralfs.yaml in a monitored root
//   - cmd/neuralfsd/cmd/config.go → creates the user config at ~/.config/neuralfs/config.yaml
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/neuralfs/config.yaml)
//  3. Project config (.neuralfs.yaml)
//  4. Environment variables (NEURALFS_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `neuralfsd config init` at ~/.config/neuralfs/config.yaml
// Contains: machine-specific settings like embedding provider endpoints,
// memory budgets, and cloud credentials.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for per-directory configuration.
// Created by: `neuralfsd init` at .neuralfs.yaml in the monitored root
// Contains: directory-specific settings like path excludes and search
// weights that travel with the directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
