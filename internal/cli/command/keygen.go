package command

import (
	"encoding/base64"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/spoolmesh-go/internal/cli/keyfile"
)

// KeygenCommand returns the keygen subcommand.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:   "keygen",
		Usage:  "Generate a new spool owner keypair",
		Action: keygenRun,
	}
}

func keygenRun(c *cli.Context) error {
	path := c.String("key")

	pub, err := keyfile.Generate(path)
	if err != nil {
		return err
	}

	return formatter(c).Format(c.App.Writer, struct {
		KeyFile   string `json:"key_file" yaml:"key_file"`
		PublicKey string `json:"public_key" yaml:"public_key"`
	}{
		KeyFile:   path,
		PublicKey: base64.RawURLEncoding.EncodeToString(pub),
	})
}
