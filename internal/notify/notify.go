// Package notify delivers client notifications raised by the engine.
package notify

import (
	"context"
	"errors"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// ErrNoRecipient is returned when a notification has nobody to go to.
var ErrNoRecipient = errors.New("notification has no recipient")

// LogNotifier writes notifications to the log. It is the default when no
// email transport is configured.
type LogNotifier struct {
	logger log.Logger
}

func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{logger: log.With(logger, "component", "notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, note models.Notification) error {
	level.Info(n.logger).Log(
		"msg", "client notification",
		"kind", note.Kind,
		"campaign_id", note.CampaignID,
		"client_id", note.ClientID,
		"recipient", note.Recipient,
		"reason", note.Reason,
		"value", note.Value.StringFixed(2),
		"currency", note.Currency,
	)
	return nil
}
