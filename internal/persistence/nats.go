package persistence

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/config"
)

// NewNats connects to NATS when a URL is configured. It returns nil, nil
// when event forwarding is disabled.
func NewNats(cfg config.NatsConfig, appName string, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return conn, nil
}
