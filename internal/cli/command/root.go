package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/spoolmesh-go/internal/cli/connection"
	"github.com/yndnr/spoolmesh-go/internal/cli/output"
	"github.com/yndnr/spoolmesh-go/internal/infra/buildinfo"
)

// DefaultKeyFile is where keygen writes the owner key unless told
// otherwise.
const DefaultKeyFile = "spool-owner.key"

// App creates the CLI application.
func App() *cli.App {
	info := buildinfo.Get()
	return &cli.App{
		Name:    "spoolmesh-cli",
		Usage:   "spoolmesh command-line client",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			KeygenCommand(),
			CreateCommand(),
			AppendCommand(),
			ReadCommand(),
			PurgeCommand(),
			ParamsCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "Path to the spoolmesh-server unix socket",
			EnvVars: []string{"SPOOLMESH_SOCKET"},
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "Path to the owner key file",
			EnvVars: []string{"SPOOLMESH_KEY"},
			Value:   DefaultKeyFile,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, json, yaml",
			Value:   "text",
		},
	}
}

// client builds a connection for the configured socket.
func client(c *cli.Context) (*connection.Client, error) {
	socket := c.String("socket")
	if socket == "" {
		return nil, fmt.Errorf("no socket path given (use --socket or SPOOLMESH_SOCKET)")
	}
	return connection.NewClient(socket), nil
}

// formatter builds the output formatter for the configured format.
func formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")))
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
