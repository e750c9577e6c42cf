package mqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetcore/dispatchd/core/model"
)

type mockClient struct {
	opts        *paho.ClientOptions
	subscribed  []struct {
		topic string
		qos   byte
	}
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
	publishErrs []error
	handlers    map[string]paho.MessageHandler
}

func (m *mockClient) IsConnected() bool       { return true }
func (m *mockClient) IsConnectionOpen() bool  { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = cb
	return &dummyToken{}
}

func (m *mockClient) SubscribeMultiple(filters map[string]byte, cb paho.MessageHandler) paho.Token {
	for topic := range filters {
		m.Subscribe(topic, filters[topic], cb)
	}
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(topics ...string) paho.Token { return &dummyToken{} }
func (m *mockClient) AddRoute(topic string, cb paho.MessageHandler) {
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = cb
}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestClientSubscribesOnlyToRequestedTopics(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)

	received := make(chan model.BidNotice, 1)
	_, err := NewClient(Config{Broker: "tcp://localhost:1883", ClientID: "id"}, "", Handlers{
		OnBidNotice: func(n model.BidNotice) { received <- n },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != TopicBidNotice {
		t.Fatalf("expected exactly one subscription to %s, got %+v", TopicBidNotice, mc.subscribed)
	}

	cb := mc.handlers[TopicBidNotice]
	cb(mc, mockMessage{p: []byte(`{"profile":{"task_id":"Clean0"}}`)})
	select {
	case n := <-received:
		if n.Profile.TaskId != "Clean0" {
			t.Fatalf("unexpected task id: %s", n.Profile.TaskId)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestClientPublishProposal(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)

	cli, err := NewClient(Config{Broker: "tcp://localhost:1883", ClientID: "id"}, "", Handlers{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := cli.PublishProposal(model.BidProposal{FleetName: "fleet-a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].topic != TopicProposal {
		t.Fatalf("expected one publish to %s, got %+v", TopicProposal, mc.published)
	}
}

func TestClientPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errTest, nil}}
	withMock(t, mc)

	cli, err := NewClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}, "", Handlers{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := cli.PublishAck(model.DispatchAck{FleetName: "fleet-a", Success: true}); err != nil {
		t.Fatalf("publish should have succeeded after retry: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", len(mc.published))
	}
}

func TestClientFleetScopedDispatchRequestSubscription(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)

	_, err := NewClient(Config{Broker: "tcp://localhost:1883", ClientID: "id"}, "fleet-a", Handlers{
		OnDispatchRequest: func(model.DispatchRequest) {},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != TopicDispatchRequest("fleet-a") {
		t.Fatalf("expected subscription scoped to fleet-a's request topic, got %+v", mc.subscribed)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("simulated publish failure")
