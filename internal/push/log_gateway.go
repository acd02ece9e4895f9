package push

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitos/notify/pkg/crypto"
	"github.com/fitos/notify/pkg/logger"
)

// LogGateway writes messages to the log instead of delivering them. It is
// used when push delivery is disabled so local environments still exercise
// the full dispatch path.
type LogGateway struct {
	log *zap.Logger
}

func NewLogGateway() *LogGateway {
	return &LogGateway{log: logger.WithModule("push")}
}

func (g *LogGateway) Send(_ context.Context, msg Message) (string, error) {
	id := "local/" + uuid.NewString()
	g.log.Info("push message (not delivered)",
		zap.String("message_id", id),
		zap.String("token", crypto.Fingerprint(msg.Token)),
		zap.String("platform", msg.Platform),
		zap.String("title", msg.Title),
	)
	return id, nil
}
