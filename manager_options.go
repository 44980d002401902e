package db_migrator

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

type ManagerOption func(*MigrationManager)

func WithLogger(logger logrus.FieldLogger) ManagerOption {
	return func(m *MigrationManager) {
		m.logger = logger
	}
}

// WithLogWriter направляет логи менеджера в writer, сохраняя уровень логирования по умолчанию.
func WithLogWriter(writer io.Writer) ManagerOption {
	return func(m *MigrationManager) {
		logger := logrus.New()
		logger.SetOutput(writer)
		logger.SetLevel(m.logLevel)
		m.logger = logger
	}
}

func WithLogLevel(level logrus.Level) ManagerOption {
	return func(m *MigrationManager) {
		m.logLevel = level
		if logger, ok := m.logger.(*logrus.Logger); ok {
			logger.SetLevel(level)
		}
	}
}

func WithLockKey(key string) ManagerOption {
	return func(m *MigrationManager) {
		m.lockKey = key
	}
}

// WithLockRetries задает количество повторных попыток взять занятую блокировку.
func WithLockRetries(retries uint64) ManagerOption {
	return func(m *MigrationManager) {
		m.lockRetries = retries
	}
}

func WithLockBackoff(initial, max time.Duration) ManagerOption {
	return func(m *MigrationManager) {
		m.lockBackoffInitial = initial
		m.lockBackoffMax = max
	}
}

func WithRegistry(registry *Registry) ManagerOption {
	return func(m *MigrationManager) {
		m.registry = registry
	}
}
