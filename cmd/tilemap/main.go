package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/b1naryth1ef/tilemap"
	"github.com/b1naryth1ef/tilemap/build"
	"github.com/b1naryth1ef/tilemap/logger"
	"github.com/b1naryth1ef/tilemap/state"
	"github.com/urfave/cli/v2"
)

func main() {
	configFlag := &cli.PathFlag{
		Name:    "config",
		Usage:   "path to the configuration file",
		Value:   "config.hcl",
		EnvVars: []string{"TILEMAP_CONFIG"},
	}
	cleanFlag := &cli.BoolFlag{
		Name:  "clean",
		Usage: "force a clean build ignoring chunk modification time data",
		Value: false,
	}

	app := &cli.App{
		Name:        "tilemap",
		Description: "minecraft web-based map generator",
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "render all configured maps once",
				Action: commandBuild,
				Flags:  []cli.Flag{configFlag, cleanFlag},
			},
			{
				Name:   "serve",
				Usage:  "serve the map and keep it up to date",
				Action: commandServe,
				Flags:  []cli.Flag{configFlag, cleanFlag},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

type environment struct {
	config *tilemap.Config
	store  *state.Store
	opts   build.BuildOpts
}

func load(ctx *cli.Context) (*environment, error) {
	config, err := tilemap.LoadConfig(ctx.Path("config"))
	if err != nil {
		return nil, err
	}

	log := logger.NewText(config.LogLevel)
	store, err := state.Open(config.StatePath)
	if err != nil {
		return nil, err
	}

	return &environment{
		config: config,
		store:  store,
		opts: build.BuildOpts{
			ForceClean: ctx.Bool("clean"),
			Progress:   os.Stderr,
			Logger:     log,
		},
	}, nil
}

func commandBuild(ctx *cli.Context) error {
	env, err := load(ctx)
	if err != nil {
		return err
	}
	defer env.store.Close()

	return build.Build(ctx.Context, env.config, env.store, env.opts)
}

func commandServe(ctx *cli.Context) error {
	env, err := load(ctx)
	if err != nil {
		return err
	}
	defer env.store.Close()

	env.opts.Progress = nil
	return build.Serve(ctx.Context, env.config, env.store, env.opts)
}
