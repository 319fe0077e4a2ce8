package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/service"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	failOn string
	closed bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if key == f.failOn {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_DeliverOnePerInstallation(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "touch_push"}

	msg := service.PushMessage{
		UserID:  uuid.New(),
		TouchID: uuid.New(),
		Alert:   "alice poked you",
		Badge:   service.BadgeIncrement,
		Installations: []model.Installation{
			{ID: uuid.New(), DeviceType: "ios", DeviceToken: "a"},
			{ID: uuid.New(), DeviceType: "android", DeviceToken: "b"},
		},
	}
	require.NoError(t, p.Deliver(context.Background(), msg))
	require.Len(t, ch.sent, 2)

	assert.Equal(t, "touch_push", ch.sent[0].exchange)
	assert.Equal(t, "installation.ios", ch.sent[0].key)
	assert.Equal(t, "installation.android", ch.sent[1].key)

	var body DevicePush
	require.NoError(t, json.Unmarshal(ch.sent[1].msg.Body, &body))
	assert.Equal(t, "b", body.DeviceToken)
	assert.Equal(t, "alice poked you", body.Alert)
	assert.Equal(t, service.BadgeIncrement, body.Badge)
	assert.Equal(t, msg.TouchID, body.TouchID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_DeliverKeepsGoingAfterFailure(t *testing.T) {
	ch := &fakeChannel{failOn: "installation.ios"}
	p := &Publisher{ch: ch, exchange: "touch_push"}

	err := p.Deliver(context.Background(), service.PushMessage{
		Installations: []model.Installation{
			{ID: uuid.New(), DeviceType: "ios"},
			{ID: uuid.New(), DeviceType: "android"},
		},
	})
	assert.ErrorContains(t, err, "channel closed")
	assert.Len(t, ch.sent, 1)
}

func TestPublisher_NoInstallationsIsNoop(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "touch_push"}
	assert.NoError(t, p.Deliver(context.Background(), service.PushMessage{}))
	assert.Empty(t, ch.sent)
}
