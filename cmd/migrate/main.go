package main

import (
	"context"
	"io/fs"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"openfeedback/internal/pkg/logger"
	"openfeedback/internal/platform/config"
	"openfeedback/internal/platform/database"
	"openfeedback/migrations"
)

var cli struct {
	Config string `help:"Path to the config file." default:"configs/config.yaml" env:"OPENFEEDBACK_CONFIG" type:"path"`
	Dir    string `help:"Read migrations from this directory instead of the embedded set." type:"existingdir"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("openfeedback-migrate"),
		kong.Description("Apply pending database migrations."),
	)
	ctx.FatalIfErrorf(run(context.Background()))
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var source fs.FS = migrations.FS
	if cli.Dir != "" {
		source = os.DirFS(cli.Dir)
	}

	applied, err := database.Migrate(ctx, db, source)
	if err != nil {
		return err
	}

	log.Info().Int("applied", len(applied)).Strs("versions", applied).Msg("migrations complete")
	return nil
}
