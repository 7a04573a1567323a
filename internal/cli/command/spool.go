package command

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/spoolmesh-go/api/spoolproto"
	"github.com/yndnr/spoolmesh-go/internal/cli/keyfile"
	"github.com/yndnr/spoolmesh-go/internal/core/domain"
)

// CreateCommand returns the create subcommand.
func CreateCommand() *cli.Command {
	return &cli.Command{
		Name:   "create",
		Usage:  "Create a new spool owned by the configured key",
		Action: createRun,
	}
}

// AppendCommand returns the append subcommand.
func AppendCommand() *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "Append a message to a spool",
		ArgsUsage: "SPOOL_ID",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:     "sequence",
				Aliases:  []string{"n"},
				Usage:    "Expected sequence number of the new message",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Message payload as a string",
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read payload from file (\"-\" for stdin)",
			},
		},
		Action: appendRun,
	}
}

// ReadCommand returns the read subcommand.
func ReadCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Read a message from a spool",
		ArgsUsage: "SPOOL_ID",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:     "sequence",
				Aliases:  []string{"n"},
				Usage:    "Sequence number of the message to read",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Write the raw payload bytes to stdout",
			},
		},
		Action: readRun,
	}
}

// PurgeCommand returns the purge subcommand.
func PurgeCommand() *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Destroy a spool and all its messages",
		ArgsUsage: "SPOOL_ID",
		Action:    purgeRun,
	}
}

// ParamsCommand returns the params subcommand.
func ParamsCommand() *cli.Command {
	return &cli.Command{
		Name:   "params",
		Usage:  "Show the parameters the server advertises",
		Action: paramsRun,
	}
}

func createRun(c *cli.Context) error {
	priv, err := keyfile.Load(c.String("key"))
	if err != nil {
		return err
	}
	conn, err := client(c)
	if err != nil {
		return err
	}

	req := &spoolproto.Request{
		Command:   spoolproto.CmdCreateSpool,
		PublicKey: priv.Public().(ed25519.PublicKey),
	}
	req.Sign(priv)

	resp, err := conn.Do(c.Context, req)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return statusError(resp)
	}

	id, err := domain.IDFromBytes(resp.SpoolID)
	if err != nil {
		return fmt.Errorf("server returned malformed spool id: %w", err)
	}
	return formatter(c).Format(c.App.Writer, struct {
		SpoolID string `json:"spool_id" yaml:"spool_id"`
	}{SpoolID: id.String()})
}

func appendRun(c *cli.Context) error {
	id, err := spoolIDArg(c)
	if err != nil {
		return err
	}
	payload, err := appendPayload(c)
	if err != nil {
		return err
	}
	priv, err := keyfile.Load(c.String("key"))
	if err != nil {
		return err
	}
	conn, err := client(c)
	if err != nil {
		return err
	}

	req := &spoolproto.Request{
		Command:  spoolproto.CmdAppendMessage,
		SpoolID:  id[:],
		Sequence: c.Uint64("sequence"),
		Payload:  payload,
	}
	req.Sign(priv)

	resp, err := conn.Do(c.Context, req)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return statusError(resp)
	}

	return formatter(c).Format(c.App.Writer, struct {
		SpoolID  string `json:"spool_id" yaml:"spool_id"`
		Sequence uint64 `json:"sequence" yaml:"sequence"`
	}{SpoolID: id.String(), Sequence: resp.Sequence})
}

func readRun(c *cli.Context) error {
	id, err := spoolIDArg(c)
	if err != nil {
		return err
	}
	conn, err := client(c)
	if err != nil {
		return err
	}

	resp, err := conn.Do(c.Context, &spoolproto.Request{
		Command:  spoolproto.CmdRetrieveMessage,
		SpoolID:  id[:],
		Sequence: c.Uint64("sequence"),
	})
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return statusError(resp)
	}

	if c.Bool("raw") {
		_, err := c.App.Writer.Write(resp.Payload)
		return err
	}
	return formatter(c).Format(c.App.Writer, struct {
		SpoolID  string `json:"spool_id" yaml:"spool_id"`
		Sequence uint64 `json:"sequence" yaml:"sequence"`
		Payload  string `json:"payload" yaml:"payload"`
	}{SpoolID: id.String(), Sequence: resp.Sequence, Payload: string(resp.Payload)})
}

func purgeRun(c *cli.Context) error {
	id, err := spoolIDArg(c)
	if err != nil {
		return err
	}
	priv, err := keyfile.Load(c.String("key"))
	if err != nil {
		return err
	}
	conn, err := client(c)
	if err != nil {
		return err
	}

	req := &spoolproto.Request{
		Command: spoolproto.CmdPurgeSpool,
		SpoolID: id[:],
	}
	req.Sign(priv)

	resp, err := conn.Do(c.Context, req)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return statusError(resp)
	}

	return formatter(c).Format(c.App.Writer, struct {
		SpoolID string `json:"spool_id" yaml:"spool_id"`
		Purged  bool   `json:"purged" yaml:"purged"`
	}{SpoolID: id.String(), Purged: true})
}

func paramsRun(c *cli.Context) error {
	conn, err := client(c)
	if err != nil {
		return err
	}

	params, err := conn.Parameters(c.Context)
	if err != nil {
		return err
	}
	return formatter(c).Format(c.App.Writer, params)
}

// spoolIDArg parses the single SPOOL_ID positional argument.
func spoolIDArg(c *cli.Context) (domain.ID, error) {
	if c.NArg() != 1 {
		return domain.ID{}, fmt.Errorf("expected exactly one SPOOL_ID argument")
	}
	id, err := domain.ParseID(c.Args().First())
	if err != nil {
		return domain.ID{}, fmt.Errorf("invalid spool id %q: %w", c.Args().First(), err)
	}
	return id, nil
}

// appendPayload resolves the payload from --message, --file or stdin.
func appendPayload(c *cli.Context) ([]byte, error) {
	msg := c.String("message")
	file := c.String("file")
	switch {
	case msg != "" && file != "":
		return nil, fmt.Errorf("--message and --file are mutually exclusive")
	case msg != "":
		return []byte(msg), nil
	case file == "-":
		return io.ReadAll(os.Stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, fmt.Errorf("no payload given (use --message or --file)")
	}
}

// statusError turns a non-OK response status into a CLI error.
func statusError(resp *spoolproto.Response) error {
	return cli.Exit(fmt.Sprintf("server rejected command: %s", resp.Status), 1)
}
