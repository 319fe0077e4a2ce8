package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DevicePush is the message a push relay consumes: one per installation.
type DevicePush struct {
	UserID      uuid.UUID `json:"user_id"`
	TouchID     uuid.UUID `json:"touch_id"`
	DeviceType  string    `json:"device_type"`
	DeviceToken string    `json:"device_token"`
	Title       string    `json:"title"`
	Alert       string    `json:"alert"`
	Badge       string    `json:"badge"`
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher hands pushes to an external APNs/FCM relay through a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       publishChannel
	exchange string
}

// Dial connects to RabbitMQ and declares the push exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	utils.Log.WithField("exchange", exchange).Info("RabbitMQ push publisher ready")
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Name() string {
	return "rabbitmq"
}

// RoutingKey is installation.<deviceType>, e.g. installation.ios.
func RoutingKey(deviceType string) string {
	return "installation." + deviceType
}

// Deliver publishes one DevicePush per installation of the recipient.
func (p *Publisher) Deliver(ctx context.Context, msg service.PushMessage) error {
	var errs []error
	for _, inst := range msg.Installations {
		body, err := json.Marshal(DevicePush{
			UserID:      msg.UserID,
			TouchID:     msg.TouchID,
			DeviceType:  inst.DeviceType,
			DeviceToken: inst.DeviceToken,
			Title:       msg.Title,
			Alert:       msg.Alert,
			Badge:       msg.Badge,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal push: %w", err))
			continue
		}

		err = p.ch.PublishWithContext(ctx,
			p.exchange,
			RoutingKey(inst.DeviceType),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    msg.CreatedAt,
				Body:         body,
			},
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("installation %s: %w", inst.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
