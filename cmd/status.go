package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stemx/internal/checkpoint"
)

// Status reports the checkpointed state of past and current runs.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	r.reloadConfig(cmd)

	store := checkpoint.NewStore(r.config.State.CheckpointFile, r.logger)

	if path := cmd.String("export"); path != "" {
		if err := store.Export(path); err != nil {
			return fmt.Errorf("failed to export checkpoint: %w", err)
		}
		r.writePlainln("✓ Checkpoint exported to %s", path)
		return nil
	}

	stats := store.Stats()
	playlists := store.IncompletePlaylists()

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Stats      map[string]int                  `json:"stats"`
			Incomplete []checkpoint.IncompletePlaylist `json:"incomplete_playlists"`
		}{stats, playlists}, true)
	}

	r.writePlainHeader("Processing Status")
	r.writePlain("Playlists: %d (%d incomplete)\n", stats["playlists"], stats["incomplete_playlists"])
	r.writePlain("Tracks: %d (%d completed)\n", stats["tracks"], stats["tracks_completed"])
	r.writePlain("Stems: %d\n", stats["stems"])

	if len(playlists) == 0 {
		r.writePlainln("No incomplete playlists.")
		return nil
	}

	r.writePlainln("Incomplete playlists:")
	for _, pl := range playlists {
		incomplete := store.IncompleteTracks(pl.PlaylistID)
		r.writePlain("  %s (%s, %d tracks pending) - resume with 'stemx resume %s'\n",
			pl.PlaylistID, pl.Status, len(incomplete), pl.PlaylistID)
	}
	return nil
}
