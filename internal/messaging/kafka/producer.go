// README: Kafka publisher for order lifecycle events (fire-and-forget, sarama async producer).
package kafka

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"nasta/internal/modules/order"
)

// Producer publishes order.StatusChangedEvent messages keyed by order ID so
// a partition preserves per-order ordering.
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	log      *logrus.Logger
}

func NewProducer(producer sarama.AsyncProducer, topic string, log *logrus.Logger) *Producer {
	p := &Producer{producer: producer, topic: topic, log: log}
	go p.drainErrors()
	return p
}

func (p *Producer) PublishStatusChanged(ev order.StatusChangedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Error("marshal status event")
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.OrderID),
		Value: sarama.ByteEncoder(payload),
	}
}

// drainErrors logs delivery failures; the order row stays the source of
// truth, so a lost event is an observability gap, not a correctness one.
func (p *Producer) drainErrors() {
	for err := range p.producer.Errors() {
		p.log.WithError(err.Err).WithField("topic", p.topic).Error("kafka publish failed")
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

var _ order.Publisher = (*Producer)(nil)
