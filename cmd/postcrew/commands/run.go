package commands

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/postcrew/internal/config"
	"github.com/suPer8Hu/postcrew/internal/post"
	"github.com/urfave/cli/v3"
)

// RunAction generates a single post synchronously and prints it.
func RunAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	// nothing is queued by a one-shot run
	cfg.JobStore = "memory"
	cfg.Dispatcher = "pool"

	app, err := newAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	req := post.Request{
		Topic:    cmd.String("topic"),
		Industry: cmd.String("industry"),
		Tone:     cmd.String("tone"),
		Audience: cmd.String("audience"),
	}

	app.Log.Info("generating post", "topic", req.Topic, "provider", app.Cfg.AIProvider)
	res, err := app.Service.RunSync(ctx, req)
	if err != nil {
		return fmt.Errorf("generate post: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintln(w, res.Post)
	fmt.Fprintf(w, "\nWord count: %d\n", res.WordCount)
	return nil
}
