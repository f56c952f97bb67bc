package app

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/ledger"
)

func (a *Application) subscribeEvents() error {
	for _, topic := range []string{
		ledger.TopicProductAdded,
		ledger.TopicProductUpdated,
		ledger.TopicProductDeleted,
		ledger.TopicProductOrdered,
	} {
		topic := topic
		if err := a.bus.Subscribe(topic, func(evt ledger.ProductEvent) {
			auditEvent(topic, evt)
		}); err != nil {
			return errors.Wrapf(err, "subscribe %s", topic)
		}
	}

	threshold := a.appConfig.Ledger.LowStockThreshold
	if threshold <= 0 {
		return nil
	}
	warn := func(evt ledger.ProductEvent) {
		warnLowStock(threshold, evt)
	}
	if err := a.bus.Subscribe(ledger.TopicProductOrdered, warn); err != nil {
		return errors.Wrap(err, "subscribe low stock")
	}
	return errors.Wrap(a.bus.Subscribe(ledger.TopicProductUpdated, warn), "subscribe low stock")
}

func auditEvent(topic string, evt ledger.ProductEvent) {
	fields := []zap.Field{
		zap.String("namespace", "audit"),
		zap.String("topic", topic),
		zap.Int64("product_id", evt.ProductID),
	}
	if evt.Record != nil {
		fields = append(fields,
			zap.Float64("quantity", evt.Quantity),
			zap.Float64("sold_total", evt.Record.Quantity),
			zap.Float64("revenue", evt.Record.Price),
		)
	}
	if topic == ledger.TopicProductDeleted {
		fields = append(fields, zap.Int("removed", evt.Removed))
	}
	zap.L().Info("ledger event", fields...)
}

// lowStock reports whether the product's numeric stock is at or below threshold.
func lowStock(threshold float64, evt ledger.ProductEvent) (float64, bool) {
	stock, ok := evt.Product.Quantity.Float()
	return stock, ok && stock <= threshold
}

func warnLowStock(threshold float64, evt ledger.ProductEvent) {
	if stock, low := lowStock(threshold, evt); low {
		zap.L().Warn("product stock is low",
			zap.String("namespace", "audit"),
			zap.Int64("product_id", evt.ProductID),
			zap.String("name", evt.Product.Name),
			zap.Float64("stock", stock),
			zap.Float64("threshold", threshold),
		)
	}
}
