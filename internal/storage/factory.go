package storage

import (
	"studylink/internal/core/ports"
	"studylink/internal/storage/memory"
	redisstore "studylink/internal/storage/redis"
	"studylink/pkg/config"

	"go.uber.org/zap"
)

// NewMeetingRepository picks the backing store from configuration:
// Redis when enabled, otherwise the in-process map. The returned
// cleanup func closes the backing connection.
func NewMeetingRepository(cfg *config.Config, logger *zap.SugaredLogger) (ports.MeetingRepository, func() error, error) {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory meeting repository")
		return memory.NewMeetingRepository(), func() error { return nil }, nil
	}

	client, err := redisstore.NewClient(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		logger,
	)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("using Redis meeting repository")
	return redisstore.NewMeetingRepository(client), func() error { return redisstore.CloseClient(client) }, nil
}
