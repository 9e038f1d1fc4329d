package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
	"github.com/jilio/shapes/internal/logging"
	"github.com/jilio/shapes/internal/shapes"
	"github.com/jilio/shapes/internal/telemetry"
)

type publisherOptions struct {
	commonOptions
	color    string
	legacy   bool
	interval time.Duration
}

// NewPublisherCommand builds the shapes-publisher command.
func NewPublisherCommand(streams Streams) *cobra.Command {
	opts := &publisherOptions{}

	cmd := &cobra.Command{
		Use:           "shapes-publisher",
		Short:         "Publish a square moving along a sine wave",
		Args:          cobra.NoArgs,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublisher(cmd, opts, streams)
		},
	}
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	opts.addFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&opts.color, "color", "c", shapes.Blue.String(), "shape color (PURPLE, BLUE, RED, GREEN, YELLOW, CYAN, MAGENTA, ORANGE)")
	f.BoolVar(&opts.legacy, "legacy", false, "publish ShapeType instead of ShapeTypeExtended")
	f.DurationVar(&opts.interval, "interval", shapes.DefaultInterval, "pause between writes")
	f.MarkHidden("interval")

	return cmd
}

// shapeWriterCloser is the writer the publisher uses plus the bus writer
// behind it
type shapeWriterCloser struct {
	shapes.ShapeWriter
	close func(context.Context) error
}

func runPublisher(cmd *cobra.Command, opts *publisherOptions, streams Streams) error {
	color, err := shapes.ParseColor(opts.color)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if done, err := opts.writeConfigIfAsked(cmd, cfg); done {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	appErr := func(err error) error {
		logger.Error("publisher failed", zap.Error(err))
		return &ApplicationError{Application: "publisher", Err: err}
	}

	obs, shutdown, err := telemetry.Setup(cfg.Telemetry, "shapes-publisher", Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	ctx := cmd.Context()
	bus, err := openBus(ctx, cfg, opts.domainID, logger, obs)
	if err != nil {
		return appErr(err)
	}
	defer bus.Close()

	writer, err := newShapeWriter(bus, opts.legacy)
	if err != nil {
		return appErr(err)
	}
	defer func() {
		if err := writer.close(context.Background()); err != nil {
			logger.Warn("writer close failed", zap.Error(err))
		}
	}()

	logger.Info("publishing",
		zap.Stringer("color", color),
		zap.Uint64("sample_count", opts.sampleCount),
		zap.Bool("legacy", opts.legacy))

	p := shapes.NewPublisher(writer, color,
		shapes.WithSampleCount(opts.sampleCount),
		shapes.WithInterval(opts.interval),
		shapes.WithOutput(streams.Out),
		shapes.WithPublisherLogger(logger))
	if _, err := p.Run(ctx); err != nil {
		return appErr(err)
	}
	return nil
}

func newShapeWriter(bus *databus.Bus, legacy bool) (*shapeWriterCloser, error) {
	if legacy {
		topic, err := databus.NewTopic[shapes.ShapeType](bus, shapes.TopicName)
		if err != nil {
			return nil, err
		}
		w := databus.NewWriter(topic)
		return &shapeWriterCloser{ShapeWriter: shapes.NewLegacyWriter(w), close: w.Close}, nil
	}

	topic, err := databus.NewTopic[shapes.ShapeTypeExtended](bus, shapes.TopicName)
	if err != nil {
		return nil, err
	}
	w := databus.NewWriter(topic)
	return &shapeWriterCloser{ShapeWriter: shapes.NewExtendedWriter(w), close: w.Close}, nil
}
