package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docflowlabs/docqc/internal/core/domain"
)

// Notifier publishes operator notifications on a dedicated subject. Callers
// treat delivery as best effort; a lost notification never blocks review
// state changes.
type Notifier struct {
	queue   *Queue
	subject string
}

func NewNotifier(queue *Queue, subject string) *Notifier {
	return &Notifier{queue: queue, subject: subject}
}

func (n *Notifier) Publish(ctx context.Context, notification domain.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	call := func(_ context.Context) error {
		if err := n.queue.conn.Publish(n.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if n.queue.executor != nil {
		err = n.queue.executor.Execute(ctx, "nats.notify", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Auditor publishes audit events on a dedicated subject.
type Auditor struct {
	queue   *Queue
	subject string
}

func NewAuditor(queue *Queue, subject string) *Auditor {
	return &Auditor{queue: queue, subject: subject}
}

func (a *Auditor) Record(ctx context.Context, event domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := a.queue.conn.Publish(a.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if a.queue.executor != nil {
		err = a.queue.executor.Execute(ctx, "nats.audit", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}
