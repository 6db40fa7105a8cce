// Command kabina-dispatch is the CLI entrypoint (C12): parse args, load
// inputs, run the epoch loop from INITIAL_TIME to FINAL_TIME, flush logs.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/kabina-dispatch/kabina/internal/config"
	"github.com/kabina-dispatch/kabina/internal/csvio"
	"github.com/kabina-dispatch/kabina/internal/logfile"
	"github.com/kabina-dispatch/kabina/internal/model"
	"github.com/kabina-dispatch/kabina/internal/pipeline"
	"github.com/kabina-dispatch/kabina/internal/telemetry"
	"github.com/kabina-dispatch/kabina/internal/timeutil"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	net, err := csvio.LoadNetwork(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load network")
	}
	vehicles, err := csvio.LoadVehicles(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load vehicles")
	}
	requests, err := csvio.LoadRequests(cfg, net, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load requests")
	}

	world := &model.World{Requests: requests, Vehicles: vehicles, Network: net}

	logs, err := logfile.OpenSet(cfg.ResultsDirectory, os.Getenv("KABINA_RTV_LOG") != "", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log files")
	}
	defer logs.Close()

	metrics := telemetry.New()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		_ = http.ListenAndServe("127.0.0.1:9090", mux)
	}()

	driver := pipeline.New(world, cfg, logs, metrics, log)

	ctx := context.Background()
	start := timeutil.Decode(cfg.InitialTime)
	end := timeutil.Decode(cfg.FinalTime)
	for t := start; t < end; t += cfg.Interval {
		if err := driver.RunEpoch(ctx, t); err != nil {
			log.Fatal().Err(err).Int("epoch_time", t).Msg("pipeline invariant violation")
		}
	}

	log.Info().Msg("run complete")
}
