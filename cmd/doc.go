// Package cmd implements the command-line interface for mailpeek.
//
// This package provides the following commands:
//   - serve: Start the HTTP API server (login, OAuth callback, email listing)
//   - version: Print the build version
//
// The serve command loads all configuration at startup, fails fast on any
// missing required setting and wires the components together explicitly.
package cmd
