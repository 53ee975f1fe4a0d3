// Package control contains the operator-facing types of the daemon.
//
// Settings is what operators change through the control API and what survives
// restarts. Status is the read model combining Settings with the live monitor state.
package control
