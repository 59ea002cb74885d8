// Package util holds the setup steps shared by the commands.
package util

import (
	"context"
	"os"
	"time"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/config"
	"github.com/mpapenbr/selfdriving-car-go/pkg/utils"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the application and the sql logger according to the
// log config and installs the first one as default logger.
func SetupLogger() (logger, sqlLogger *log.Logger, err error) {
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			ParseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		if logger, err = logger.WithFilter(config.LogFilter); err != nil {
			return nil, nil, err
		}
	}
	log.ResetDefault(logger)
	return logger, sqlLogger.Named("sql"), nil
}

func WaitTimeout() time.Duration {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	return timeout
}

// WaitForDB blocks until the database given by config.DB accepts connections
func WaitForDB(ctx context.Context) error {
	return utils.WaitForTCP(ctx, utils.ExtractFromDBURL(config.DB), WaitTimeout())
}

// WaitForNats blocks until the NATS server given by config.NatsURL accepts connections
func WaitForNats(ctx context.Context) error {
	return utils.WaitForTCP(ctx, utils.ExtractFromNatsURL(config.NatsURL), WaitTimeout())
}
