package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/imu"
	"github.com/cengaverrover/bno055-telemetry/internal/imu/bno055"
	"github.com/cengaverrover/bno055-telemetry/internal/mqttpub"
	"github.com/cengaverrover/bno055-telemetry/internal/storage"
	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

const (
	storageDir = "data"

	// bootstrapRetryDelay is how long the supervisor waits between failed
	// attempts to construct the publisher node.
	bootstrapRetryDelay = time.Second
)

// Run wires the sinks, supervises node construction and then blocks in the
// sampling loop until the context is cancelled. Sensor faults never propagate
// out of this function: open failures are retried indefinitely and read
// failures are absorbed by the node's recovery cycle.
func Run(ctx context.Context, device DeviceArgs, config *Config, logger *slog.Logger) error {
	sink, closeSinks, err := createSinks(ctx, device, config, logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry sinks: %w", err)
	}
	defer closeSinks()

	nodeConfig := NodeConfig{
		FrameID: config.IMU.FrameID,
		OpenSensor: func() (imu.Sensor, error) {
			return bno055.Open(device.Path, device.Addr)
		},
		Sink: sink,
	}

	node := bootstrap(ctx, nodeConfig, logger, bootstrapRetryDelay)
	if node == nil {
		return nil // shut down before a node could be constructed
	}
	defer node.Close()

	logger.Info("publishing telemetry",
		slog.String("device", device.Path),
		slog.String("address", fmt.Sprintf("0x%02X", device.Addr)),
		slog.String("frameId", config.IMU.FrameID),
		slog.Duration("period", samplePeriod))

	return node.Run(ctx)
}

// bootstrap repeatedly attempts to construct the publisher node, waiting
// between attempts, until one succeeds or the context is cancelled. A failed
// attempt leaves no state behind; each retry starts from scratch.
func bootstrap(ctx context.Context, config NodeConfig, logger *slog.Logger, retryDelay time.Duration) *Node {
	for {
		if ctx.Err() != nil {
			return nil
		}

		node, err := NewNode(config, WithLogger(logger))
		if err == nil {
			return node
		}
		logger.Error(fmt.Sprintf("cannot connect to I2C device: %s", err.Error()))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

func createSinks(ctx context.Context, device DeviceArgs, config *Config, logger *slog.Logger) (telemetry.Publisher, func(), error) {
	var sinks telemetry.MultiPublisher

	closeAll := func() {
		if err := sinks.Close(); err != nil {
			logger.Warn(fmt.Sprintf("closing telemetry sinks: %s", err.Error()))
		}
	}

	if config.MQTT.Enabled {
		publisher, err := mqttpub.New(ctx, config.MQTT.Config, mqttpub.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("creating MQTT publisher: %w", err)
		}
		sinks = append(sinks, publisher)
	}

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("creating storage: %w", err)
		}

		recorder, err := storage.NewRecorder(ctx, store, device.Path, device.Addr, config.IMU.FrameID,
			storage.WithBatchSize(config.Storage.MaxBatchSize))
		if err != nil {
			_ = store.Close()
			closeAll()
			return nil, nil, err
		}

		sinks = append(sinks, recorder)
		return sinks, func() {
			closeAll()
			if err := store.Close(); err != nil {
				logger.Warn(fmt.Sprintf("closing storage: %s", err.Error()))
			}
		}, nil
	}

	return sinks, closeAll, nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("imu_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
