// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// resolveCommand resolves a track to a source candidate without processing it.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a catalog track to a source candidate",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Resolve,
	}
}

// processCommand runs the full pipeline for one track.
func processCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Process a single track into channel stems",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{
				Name:  "channels",
				Usage: "Channels to produce (main, acapellas, drums, samples)",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Separation device (cuda:0, cpu)",
			},
		},
		Action: r.Process,
	}
}

// batchCommand processes many tracks under the concurrency bound.
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Process multiple tracks or a whole playlist",
		ArgsUsage: "[trackID ...]",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "Playlist ID to expand into track IDs",
			},
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Maximum tracks in flight (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "channels",
				Usage: "Channels to produce (main, acapellas, drums, samples)",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Separation device (cuda:0, cpu)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Show the live progress monitor while the batch runs",
			},
		},
		Action: r.Batch,
	}
}

// resumeCommand re-runs the incomplete tracks of a checkpointed playlist.
func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Resume an interrupted playlist run from its checkpoint",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Maximum tracks in flight (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Show the live progress monitor while the batch runs",
			},
		},
		Action: r.Resume,
	}
}

// statusCommand reports checkpoint state.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show checkpointed processing state",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.StringFlag{
				Name:    "export",
				Aliases: []string{"o"},
				Usage:   "Export the checkpoint document to a file",
			},
		},
		Action: r.Status,
	}
}
