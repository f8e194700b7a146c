// Command daqserverd is the runtime entry point of spec.md §6: it loads a
// register map, assembles an application whose one module is the data-loss
// counter (no networks are added), and runs it until an interrupt signal arrives, exiting 0 on clean shutdown
// or non-zero if any module reported a fatal error.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"daqcore/backend"
	"daqcore/internal/logx"
	"daqcore/mapparser"
	"daqcore/runner"
)

func main() {
	os.Exit(run())
}

func run() int {
	pflag.String("map-file", "", "path to the register map file (.map or .jmap)")
	pflag.Int("queue-depth", runner.DefaultQueueDepth, "default inter-thread queue depth")
	pflag.Parse()

	log := logx.For("daqserverd")

	v := viper.New()
	v.SetEnvPrefix("DAQCORE")
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		log.Error().Err(err).Msg("binding flags")
		return 1
	}

	mapFile := v.GetString("map-file")
	if mapFile == "" {
		log.Error().Msg("-map-file is required")
		return 2
	}

	catalogue, err := mapparser.ParseFile(mapFile)
	if err != nil {
		log.Error().Err(err).Str("file", mapFile).Msg("parsing register map")
		return 2
	}
	log.Info().Int("registers", len(catalogue.RegisterPaths())).Msg("register catalogue loaded")

	// The production device backend is a dynamically loaded library, out
	// of scope for this repository (spec.md §1); daqserverd falls back to
	// an in-process memory backend so the framework runs standalone.
	be := backend.NewMemory(map[int]int{0: 1 << 16}, 1, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := be.Open(ctx); err != nil {
		log.Error().Err(err).Msg("opening backend")
		return 2
	}
	defer be.Close()

	app := runner.New()

	trigger := runner.NewBoundedQueue[struct{}](1)
	if err := app.AddModule(runner.NewDataLossCounterModule("dataLossCounter", trigger)); err != nil {
		log.Error().Err(err).Msg("adding data loss counter module")
		return 2
	}

	if err := app.Freeze(); err != nil {
		log.Error().Err(err).Msg("freezing application")
		return 2
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("application running")
	if err := app.Run(sigCtx); err != nil {
		log.Error().Err(err).Msg("module reported a fatal error")
		return 1
	}
	return 0
}
