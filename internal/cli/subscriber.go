package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
	"github.com/jilio/shapes/internal/display"
	"github.com/jilio/shapes/internal/logging"
	"github.com/jilio/shapes/internal/shapes"
	"github.com/jilio/shapes/internal/telemetry"
)

type subscriberOptions struct {
	commonOptions
	durability      string
	livelinessLease time.Duration
}

// NewSubscriberCommand builds the shapes-subscriber command.
func NewSubscriberCommand(streams Streams) *cobra.Command {
	opts := &subscriberOptions{}

	cmd := &cobra.Command{
		Use:           "shapes-subscriber",
		Short:         "Display the squares published on a domain",
		Args:          cobra.NoArgs,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriber(cmd, opts, streams)
		},
	}
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	opts.addFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.durability, "durability", "", "reader durability (volatile, transient-local)")
	f.DurationVar(&opts.livelinessLease, "liveliness-lease", 0, "drop writers not heard from for this long, 0 disables")

	return cmd
}

func runSubscriber(cmd *cobra.Command, opts *subscriberOptions, streams Streams) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("durability") {
		cfg.Bus.Durability = opts.durability
	}
	if f.Changed("liveliness-lease") {
		cfg.Bus.LivelinessLease = opts.livelinessLease.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	durability, err := parseDurability(cfg.Bus.Durability)
	if err != nil {
		return err
	}
	if done, err := opts.writeConfigIfAsked(cmd, cfg); done {
		return err
	}

	logger, err := logging.ForScreen(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	appErr := func(err error) error {
		logger.Error("subscriber failed", zap.Error(err))
		return &ApplicationError{Application: "subscriber", Err: err}
	}

	obs, shutdown, err := telemetry.Setup(cfg.Telemetry, "shapes-subscriber", Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bus, err := openBus(ctx, cfg, opts.domainID, logger, obs)
	if err != nil {
		return appErr(err)
	}
	defer bus.Close()

	if err := shapes.RegisterLegacyUpcast(bus); err != nil {
		return appErr(err)
	}
	topic, err := databus.NewTopic[shapes.ShapeTypeExtended](bus, shapes.TopicName)
	if err != nil {
		return appErr(err)
	}
	reader, err := databus.NewReader(ctx, topic,
		databus.WithDurability(durability),
		databus.WithHistoryDepth(cfg.Bus.HistoryDepth),
		databus.WithLivelinessLease(cfg.GetLivelinessLease()))
	if err != nil {
		return appErr(err)
	}

	var screenOpts []display.ScreenOption
	if out, ok := streams.Out.(*os.File); ok {
		term, err := display.OpenTerminal(streams.In, out)
		if err != nil {
			return appErr(err)
		}
		defer term.Close()

		if _, height, err := term.Size(); err == nil {
			if n := display.LogEntriesFor(height); n < display.LogCapacity {
				logger.Warn("terminal too short for the full log",
					zap.Int("rows", height),
					zap.Int("log_lines", n))
				screenOpts = append(screenOpts, display.WithLogEntries(n))
			}
		}

		// raw mode delivers Ctrl-C as a key instead of SIGINT
		if term.Raw() {
			go display.WatchKeys(streams.In, cancel)
		}
	}

	screen := display.NewScreen(streams.Out, screenOpts...)
	if err := screen.Clear(); err != nil {
		logger.Warn("clear screen failed", zap.Error(err))
	}

	logger.Info("subscribing",
		zap.Stringer("durability", durability),
		zap.Uint64("sample_count", opts.sampleCount))

	read, err := shapes.NewSubscriber(reader, screen, opts.sampleCount, logger).Run(ctx)
	if err != nil {
		return appErr(err)
	}
	logger.Info("subscriber done", zap.Uint64("samples_read", read))
	return nil
}
