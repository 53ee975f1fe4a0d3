// Package config defines the monitor settings and provides helpers to load,
// validate and save them in YAML format.
//
// Values from the YAML file can be overridden by DROWSY_* environment
// variables, optionally sourced from a .env file next to the binary.
package config
