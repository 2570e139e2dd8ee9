package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stemx/internal/shared"
)

// confirmAttempts bounds the interactive prompt: after this many
// unrecognized answers the command aborts instead of looping forever.
const confirmAttempts = 3

// setupCommand initializes configuration and the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config file without prompting",
			},
		},
		Action: r.Setup,
	}
}

// Setup creates the config file if needed and runs database migrations.
//
// When a config file already exists the user is asked before it is
// replaced; the prompt accepts yes/no and gives up after a bounded
// number of unrecognized answers.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		overwrite := cmd.Bool("force")
		if !overwrite {
			answer, err := r.confirm(fmt.Sprintf("Config file exists at %s. Overwrite with the template? [y/N] ", configPath))
			if err != nil {
				return err
			}
			overwrite = answer
		}
		if overwrite {
			if err := os.Remove(configPath); err != nil {
				return fmt.Errorf("failed to remove existing config: %w", err)
			}
			if err := shared.CreateConfigFile(configPath); err != nil {
				return fmt.Errorf("failed to recreate config file: %w", err)
			}
			r.logger.Info("config file recreated from template", "path", configPath)
		} else {
			r.logger.Info("keeping existing config file", "path", configPath)
		}
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.logger.Info("config file created", "path", configPath)
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		config = shared.DefaultConfig()
	}
	r.config = config

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlainln("✓ Setup complete")
	r.writePlain("  Config: %s\n", configPath)
	r.writePlain("  Database: %s\n", config.Database.Path)
	r.writePlain("Fill in catalog credentials in %s before running 'stemx process'.\n", configPath)
	return nil
}

// confirm asks a yes/no question on the runner's input. Unrecognized
// answers re-prompt up to confirmAttempts times, then the prompt fails.
func (r *Runner) confirm(prompt string) (bool, error) {
	scanner := bufio.NewScanner(r.input)

	for attempt := 0; attempt < confirmAttempts; attempt++ {
		r.writePlain("%s", prompt)
		if !scanner.Scan() {
			return false, nil
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		default:
			r.writePlain("Please answer y or n.\n")
		}
	}

	return false, fmt.Errorf("%w: no valid answer after %d attempts", shared.ErrInvalidInput, confirmAttempts)
}
