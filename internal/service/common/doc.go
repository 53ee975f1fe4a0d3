// Package common holds helpers shared by several services.
//
// It provides a lightweight MonitorService client with per-call timeouts that
// signs every switch with the current system actor (user@host).
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
