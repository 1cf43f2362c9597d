// Package command provides CLI command definitions for retrostate-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, client construction
//   - state.go: State subcommand group (upload, download, range, selftest)
//   - system.go: System subcommand group (health, status, gc)
//
// Commands parse their flags, call the server through
// connection.HTTPClient and render results with the output package
// to the app's Writer.
package command
