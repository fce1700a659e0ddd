package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"

	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/config"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/converter"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/gtfs"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/metrics"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/poller"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/server"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/siri"
	"github.com/theoremus-urban-solutions/siri-to-gtfsrt/store"
)

func main() {
	_ = godotenv.Load()

	if os.Getenv("SIRI_GTFSRT_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if os.Getenv("SIRI_GTFSRT_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "siri-gtfsrt",
		Description: "Bridges a SIRI-VM vehicle monitoring service into a GTFS-Realtime feed",

		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the bridge",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Usage: "Path to config.yml"},
				},
				Action: run,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	location, err := time.LoadLocation(cfg.GTFS.Timezone)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()

	downloader := gtfs.NewDownloader(cfg.GTFS.ResourceURL, cfg.GTFS.DownloadTimeout())
	resource := gtfs.NewResource(downloader, location, cfg.GTFS.StalenessInterval())

	log.Info().Str("url", cfg.GTFS.ResourceURL).Msg("Loading GTFS resource into memory")
	if err := resource.LoadInitial(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load GTFS resource")
	}

	entityStore := store.New(cfg.Store.Threshold(), cfg.Store.SweepInterval(), collector)
	siriClient := siri.NewClient(cfg.SIRI.Endpoint, cfg.SIRI.RequestorRef, cfg.SIRI.Timeout())
	projector := converter.NewProjector(location)
	siriPoller := poller.New(siriClient, resource, projector, entityStore, collector,
		cfg.SIRI.Ratelimit(), cfg.SIRI.LinesRefresh())

	feedServer := server.New(entityStore, resource)

	var wg conc.WaitGroup
	wg.Go(func() { resource.RunStalenessLoop(ctx) })
	wg.Go(func() { resource.RunRolloverLoop(ctx) })
	wg.Go(func() { siriPoller.Run(ctx) })
	wg.Go(func() { entityStore.RunSweepLoop(ctx) })

	if cfg.Metrics.Addr != "" {
		collector.Serve(cfg.Metrics.Addr)
	}

	go func() {
		if err := feedServer.Listen(cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("Feed server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	if err := feedServer.Shutdown(10 * time.Second); err != nil {
		log.Warn().Err(err).Msg("Feed server shutdown error")
	}
	wg.Wait()

	log.Info().Msg("Stopped")
	return nil
}
