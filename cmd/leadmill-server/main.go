// Package main runs the leadmill server: the HTTP API, the trigger manager
// and the execution engine in one process.
package main

import (
	"context"
	"os"

	"github.com/leadmill/leadmill/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("server")

	command := &cli.Command{
		Name:                  "leadmill-server",
		Usage:                 "Run the lead automation engine and its API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or a file path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "messaging-gateway-url",
				Usage:   "HTTP endpoint of the outbound messaging provider",
				Value:   "http://localhost:8085/messages",
				Sources: cli.EnvVars("MESSAGING_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			server, err := NewServer(ctx, logger, ServerConfig{
				Port:                command.Int("port"),
				DatabaseURL:         command.String("database-url"),
				MessagingGatewayURL: command.String("messaging-gateway-url"),
			})
			if err != nil {
				return err
			}

			return server.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
