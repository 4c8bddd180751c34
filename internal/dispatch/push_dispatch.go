package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/station-matching/internal/models"
)

// PushNotifier prefers a live websocket session and falls back to the
// notification service. With neither available the message is only logged.
type PushNotifier struct {
	WS       *WSRegistry
	Fallback Notifier
	Logger   *slog.Logger
}

func NewPushNotifier(ws *WSRegistry, fallback Notifier, logger *slog.Logger) *PushNotifier {
	return &PushNotifier{WS: ws, Fallback: fallback, Logger: logger}
}

func (p *PushNotifier) Send(ctx context.Context, n models.Notification) error {
	if p.WS != nil {
		err := p.WS.Send(ctx, n)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoSession) && p.Logger != nil {
			p.Logger.Warn("ws notification failed, falling back", "to_id", n.ToID, "error", err)
		}
	}
	if p.Fallback != nil {
		return p.Fallback.Send(ctx, n)
	}
	if p.Logger != nil {
		p.Logger.Info("notification", "to_id", n.ToID, "title", n.Title, "body", n.Body)
	}
	return nil
}
