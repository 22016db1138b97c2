package metrics

import (
	"context"

	"ledger/internal/amqp"
)

type instrumentedPublisher struct {
	next amqp.Publisher
	m    *Metrics
}

// InstrumentPublisher counts published events by type and outcome.
func (m *Metrics) InstrumentPublisher(p amqp.Publisher) amqp.Publisher {
	return &instrumentedPublisher{next: p, m: m}
}

func (p *instrumentedPublisher) Publish(ctx context.Context, e amqp.ProjectEvent) error {
	err := p.next.Publish(ctx, e)
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	p.m.ObserveEvent(string(e.Type), outcome)
	return err
}

// InstrumentHandler counts consumed events by type and outcome.
func (m *Metrics) InstrumentHandler(h amqp.Handler) amqp.Handler {
	return func(ctx context.Context, e amqp.ProjectEvent) error {
		err := h(ctx, e)
		outcome := "handled"
		if err != nil {
			outcome = "failed"
		}
		m.ObserveEvent(string(e.Type), outcome)
		return err
	}
}
