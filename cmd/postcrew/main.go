package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/postcrew/cmd/postcrew/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "postcrew",
		Usage: "LinkedIn post generation with a research/write/review agent crew",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and the job workers",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "listen port, overrides PORT",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "run",
				Usage: "generate one post and print it",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "topic",
						Usage:    "what the post is about",
						Required: true,
					},
					&cli.StringFlag{Name: "industry", Usage: "target industry (default Technology)"},
					&cli.StringFlag{Name: "tone", Usage: "writing tone (default professional)"},
					&cli.StringFlag{Name: "audience", Usage: "target audience (default professionals)"},
				},
				Action: commands.RunAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "dotenv file to load before reading the environment",
		Value: ".env",
	}
}
