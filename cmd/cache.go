package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stemx/internal/checkpoint"
	"github.com/desertthunder/stemx/internal/match"
)

// cacheCommand inspects and clears the persisted resolution and
// recovery state.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear match cache, retry queue, recovery cache, and checkpoints",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show cache and checkpoint contents",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:      "clear",
				Usage:     "Clear persisted state (scope: all, match, retries, recovery, checkpoint)",
				ArgsUsage: "[scope]",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.CacheClear,
			},
		},
	}
}

// CacheShow prints entry counts for every persisted store plus the
// queued retry entries.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	matchCache := match.NewCache(r.config.State.MatchCacheFile, r.logger)
	retries := match.NewRetryQueue(r.config.State.RetryQueueFile, r.logger)
	recovery := checkpoint.NewRecoveryCache(r.config.State.RecoveryCacheFile, r.logger)
	checkpoints := checkpoint.NewStore(r.config.State.CheckpointFile, r.logger)

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Matches     int                         `json:"matches"`
			Retries     map[string]match.RetryEntry `json:"retries"`
			CachedStems int                         `json:"cached_stems"`
			Checkpoint  map[string]int              `json:"checkpoint"`
		}{matchCache.Len(), retries.Entries(), recovery.Len(), checkpoints.Stats()}, true)
	}

	r.writePlainHeader("Persisted State")
	r.writePlain("Confident matches: %d\n", matchCache.Len())
	r.writePlain("Cached stem files: %d\n", recovery.Len())
	r.writePlain("Checkpoint entries: %d\n", checkpoints.Stats()["checkpoint_entries"])

	queued := retries.Entries()
	r.writePlain("Retry queue: %d\n", len(queued))
	for key, entry := range queued {
		r.writePlain("  %s: %s / %s (%d attempts)\n", key, entry.Artist, entry.Title, entry.Attempts)
	}
	return nil
}

// CacheClear removes persisted state for the given scope.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	scope := cmd.Args().First()
	if scope == "" {
		scope = "all"
	}

	type clearer struct {
		name string
		fn   func() error
	}

	var targets []clearer
	matchCache := match.NewCache(r.config.State.MatchCacheFile, r.logger)
	retries := match.NewRetryQueue(r.config.State.RetryQueueFile, r.logger)
	recovery := checkpoint.NewRecoveryCache(r.config.State.RecoveryCacheFile, r.logger)
	checkpoints := checkpoint.NewStore(r.config.State.CheckpointFile, r.logger)

	switch scope {
	case "all":
		targets = []clearer{
			{"match cache", matchCache.Clear},
			{"retry queue", retries.Clear},
			{"recovery cache", recovery.Clear},
			{"checkpoint", checkpoints.Clear},
		}
	case "match":
		targets = []clearer{{"match cache", matchCache.Clear}}
	case "retries":
		targets = []clearer{{"retry queue", retries.Clear}}
	case "recovery":
		targets = []clearer{{"recovery cache", recovery.Clear}}
	case "checkpoint":
		targets = []clearer{{"checkpoint", checkpoints.Clear}}
	default:
		return fmt.Errorf("unknown scope %q: expected all, match, retries, recovery, or checkpoint", scope)
	}

	for _, target := range targets {
		if err := target.fn(); err != nil {
			return fmt.Errorf("failed to clear %s: %w", target.name, err)
		}
		r.writePlain("✓ Cleared %s\n", target.name)
	}
	return nil
}
