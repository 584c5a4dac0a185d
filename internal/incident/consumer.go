package incident

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linnemanlabs/codeblue/internal/alert"
)

// Subscriber is the slice of the queue transport the consumer needs.
type Subscriber interface {
	Subscribe(subject, queueGroup string, handler func(ctx context.Context, data []byte) error) error
}

// StartConsumer wires the coordinator to the alert subject. Malformed
// payloads are rejected before they reach the state machine.
func StartConsumer(sub Subscriber, svc *Service) error {
	return sub.Subscribe(alert.SubjectAlerts, alert.QueueGroupCoordinator, func(ctx context.Context, data []byte) error {
		var ev alert.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode alert event: %w", err)
		}
		if ev.ID == "" {
			return fmt.Errorf("alert event missing alert_id")
		}
		return svc.HandleAlertEvent(ctx, ev)
	})
}
