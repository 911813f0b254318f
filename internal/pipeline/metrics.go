package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	duplicates  metric.Int64Counter
	matches     metric.Int64Counter
	committed   metric.Int64Counter
	cleared     metric.Int64Counter
	suggestions metric.Int64Counter
	rollbacks   metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("finance-reconciler/pipeline")
	return &metrics{
		duplicates:  counter(meter, "reconciler.duplicates_skipped", "Candidates dropped as duplicates of confirmed transactions"),
		matches:     counter(meter, "reconciler.cheque_matches", "Cheque match attempts by confidence"),
		committed:   counter(meter, "reconciler.transactions_committed", "Transactions committed to the ledger"),
		cleared:     counter(meter, "reconciler.obligations_cleared", "Scheduled obligations cleared by a payment"),
		suggestions: counter(meter, "reconciler.adjustments_suggested", "Balance adjustments suggested by discrepancy checks"),
		rollbacks:   counter(meter, "reconciler.rollbacks", "Multi-record writes that were rolled back"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter, n int, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	c.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}
