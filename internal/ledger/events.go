package ledger

import (
	EventBus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/domain"
)

// Topics published after a mutation has been persisted.
const (
	TopicProductAdded   = "ledger:product:added"
	TopicProductUpdated = "ledger:product:updated"
	TopicProductDeleted = "ledger:product:deleted"
	TopicProductOrdered = "ledger:product:ordered"
)

// ProductEvent is the payload of product topics. Record is set for orders only.
type ProductEvent struct {
	ProductID int64
	Product   domain.Product
	Record    *domain.SoldRecord
	Quantity  float64
	Removed   int
}

// NewEventBus returns the bus the service and its subscribers share.
func NewEventBus() EventBus.Bus {
	return EventBus.New()
}

func (s *Service) publish(topic string, evt ProductEvent) {
	if s.bus == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("event subscriber for %s panicked: %v", topic, r)
		}
	}()
	s.bus.Publish(topic, evt)
}
