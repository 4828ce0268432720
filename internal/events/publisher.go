// Package events publishes cross-service events over NATS. Publishes are
// fire-and-forget and happen only after the core transaction has committed;
// a publish failure is logged and never propagated to the caller.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/config"
)

const (
	SubjectOrderCreated      = "fulfillment.order.created"
	SubjectOrderStatusChange = "fulfillment.order.status_changed"
	SubjectViolationRecorded = "fulfillment.sla.violation_recorded"
	SubjectDealerFlagged     = "fulfillment.dealer.flagged"
	SubjectDealerDisabled    = "fulfillment.dealer.disabled"
)

// Publisher is the outbound event sink. The connection handle is explicit and
// passed in at construction; nothing in this package holds global state.
type Publisher interface {
	Publish(subject string, payload interface{})
	Close()
}

type natsPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewPublisher connects to NATS and returns a publisher
func NewPublisher(cfg config.NATSConfig, logger *zap.Logger) (*natsPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &natsPublisher{conn: conn, logger: logger}, nil
}

func (p *natsPublisher) Publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal event payload",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("subject", subject), zap.Error(err))
	}
}

func (p *natsPublisher) Close() {
	p.conn.Drain()
}

// NopPublisher discards events; used by CLI tools and tests
type NopPublisher struct{}

func (NopPublisher) Publish(string, interface{}) {}
func (NopPublisher) Close()                      {}
