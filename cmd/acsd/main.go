package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/lattice-acs/acs/cmd/acsd/subcommands/serve"
	"github.com/lattice-acs/acs/cmd/acsd/version"
	"github.com/lattice-acs/acs/internal/logging"
)

var logger = logging.GetLogger("acsd")

func main() {
	cmd := &cli.Command{
		Name:  "acsd",
		Usage: "A multi-tenant access control service",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug-level logging output to stderr",
				Value:   logger.IsDebugEnabled(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Starts the tenant supervisor and RPC edge",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "The address to serve the RPC edge on.",
						Value: ":8080",
					},
					&cli.StringFlag{
						Name:  "tenants",
						Usage: "Path to the tenants.yaml bootstrap descriptor, overriding ACS_TENANTS_FILE.",
					},
				},
				Action: serve.Execute,
			},
			{
				Name:  "version",
				Usage: "Prints the acsd version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
