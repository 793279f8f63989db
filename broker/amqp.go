package broker

import (
	"context"
	"encoding/json"

	"github.com/tiffinlabs/tiffin/event"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
)

var _ Producer = &AMQPBroker{}
var _ Consumer = &AMQPBroker{}

const (
	billingExchange   string = "billing_events"
	billingRoutingKey        = "billing"
	billingQueue             = "billing_audit"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupBillingExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for billing events")
	}

	return broker, nil
}

func (a *AMQPBroker) setupBillingExchange() error {
	return a.channel.ExchangeDeclare(
		billingExchange, // name
		"direct",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// PublishBillingEvent will publish a billing event as JSON to the billing exchange
func (a *AMQPBroker) PublishBillingEvent(e *event.BillingEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode billing event into bytes")
	}
	if err := a.channel.Publish(
		billingExchange,
		billingRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish billing event")
	}
	return nil
}

func (a *AMQPBroker) setupQueue(qName string) error {
	_, err := a.channel.QueueDeclare(
		qName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// ReceiveBillingEvents will return a channel of decoded billing events.
// Malformed messages are rejected without requeue.
func (a *AMQPBroker) ReceiveBillingEvents(ctx context.Context) (<-chan *event.BillingEvent, error) {
	if err := a.setupQueue(billingQueue); err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup queue")
	}
	if err := a.channel.QueueBind(
		billingQueue,
		billingRoutingKey,
		billingExchange,
		false,
		nil,
	); err != nil {
		return nil, extErrors.Wrap(err, "Cannot bind queue to exchange")
	}
	msgChan, err := a.channel.Consume(
		billingQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot setup consumer")
	}
	rChan := make(chan *event.BillingEvent)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-msgChan:
				var e event.BillingEvent
				if err := json.Unmarshal(d.Body, &e); err != nil {
					d.Nack(false, false)
					continue
				}
				rChan <- &e
				d.Ack(false)
			}
		}
	}()
	return rChan, nil
}
