package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	databus "github.com/jilio/shapes"
	"github.com/jilio/shapes/internal/config"
	shapesotel "github.com/jilio/shapes/otel"
	"github.com/jilio/shapes/stores/durablestream"
	"github.com/jilio/shapes/stores/sqlite"
)

// openBus connects to the domain over the configured transport.
func openBus(ctx context.Context, cfg *config.Config, domainID uint32, logger *zap.Logger, obs *shapesotel.Observability) (*databus.Bus, error) {
	opts := []databus.Option{
		databus.WithDomainID(domainID),
		databus.WithLogger(logger),
		databus.WithPollInterval(cfg.GetPollInterval()),
		databus.WithUpcastErrorHandler(legacyDropLogger(logger)),
	}
	if obs != nil {
		opts = append(opts, databus.WithObservability(obs))
	}

	switch cfg.Bus.Transport {
	case config.TransportMemory:
		logger.Warn("memory transport only connects readers and writers of this process")

	case config.TransportSQLite:
		if err := os.MkdirAll(cfg.Bus.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create bus directory: %w", err)
		}
		storeOpts := []sqlite.Option{sqlite.WithLogger(logger.Sugar())}
		if obs != nil {
			storeOpts = append(storeOpts, sqlite.WithMetricsHook(obs))
		}
		store, err := sqlite.Open(cfg.Bus.Dir, domainID, storeOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, databus.WithEventStore(store))

	case config.TransportHTTP:
		store, err := durablestream.Open(ctx, cfg.Bus.URL, domainID,
			durablestream.WithLogger(logger.Sugar()))
		if err != nil {
			return nil, err
		}
		opts = append(opts, databus.WithEventStore(store))

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Bus.Transport)
	}

	logger.Info("joined domain",
		zap.Uint32("domain_id", domainID),
		zap.String("transport", cfg.Bus.Transport))
	return databus.New(opts...), nil
}

// legacyDropLogger reports samples from a publisher of an older shape type
// that could not be converted for this reader.
func legacyDropLogger(logger *zap.Logger) databus.UpcastErrorHandler {
	return func(typeName string, err error) {
		logger.Warn("dropped sample of an older shape type",
			zap.String("type", typeName),
			zap.Error(err))
	}
}

// parseDurability maps the configured durability name.
func parseDurability(s string) (databus.Durability, error) {
	switch s {
	case "", databus.Volatile.String():
		return databus.Volatile, nil
	case databus.TransientLocal.String():
		return databus.TransientLocal, nil
	default:
		return 0, fmt.Errorf("invalid durability %q", s)
	}
}
