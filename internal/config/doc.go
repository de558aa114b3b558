// Package config defines the format-agnostic settings model for the
// application and the Loader interface that concrete formats (HCL, editor
// JSON) implement.
//
// Settings are layered: defaults, then a settings file, then FLOWLOOP_*
// environment variables, then command-line flags. Each layer only overrides
// the fields it sets.
package config
