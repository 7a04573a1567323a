// Package command provides CLI command definitions for spoolmesh-cli.
//
// It uses urfave/cli/v2 for command parsing. Commands talk to a
// running spoolmesh-server over its unix socket; the owner key used
// to sign mutating commands lives in a key file managed by keygen.
package command
