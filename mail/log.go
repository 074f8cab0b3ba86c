package mail

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport logs messages instead of delivering them. Bodies are not
// logged because they can carry temporary passwords and reset links.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{log: log.Named("mail")}
}

func (t *LogTransport) Deliver(_ context.Context, from Address, msg Message) error {
	t.log.Info("mail not delivered (log transport)",
		zap.String("from", from.Email),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
		zap.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
