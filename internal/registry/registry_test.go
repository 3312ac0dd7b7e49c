package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return true }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// In-memory broker double: retained messages only, delivered
// synchronously on subscribe.
type fakeClient struct {
	mu       sync.Mutex
	retained map[string]string
	flags    map[string]bool // retain flag per topic, as published
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		retained: make(map[string]string),
		flags:    make(map[string]bool),
	}
}

func (c *fakeClient) IsConnected() bool       { return true }
func (c *fakeClient) IsConnectionOpen() bool  { return true }
func (c *fakeClient) Connect() mqtt.Token     { return fakeToken{} }
func (c *fakeClient) Disconnect(quiesce uint) {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retained[topic] = fmt.Sprintf("%v", payload)
	c.flags[topic] = retained
	return fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	value, ok := c.retained[topic]
	c.mu.Unlock()

	if ok {
		callback(c, fakeMessage{topic: topic, payload: []byte(value)})
	}
	return fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token { return fakeToken{} }

func (c *fakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func TestPutStringMapsPathToTopic(t *testing.T) {
	client := newFakeClient()
	r := New(client)

	if err := r.PutString(PathEtime, "2.5000"); err != nil {
		t.Fatalf("PutString: %v", err)
	}

	if got := client.retained["i/camd/etime"]; got != "2.5000" {
		t.Fatalf("retained[i/camd/etime] = %q, want %q", got, "2.5000")
	}
	if !client.flags["i/camd/etime"] {
		t.Fatal("value was not published retained")
	}
}

func TestPutfFormats(t *testing.T) {
	client := newFakeClient()
	r := New(client)

	if err := r.Putf(PathEtime, "%.4f", 2.5); err != nil {
		t.Fatalf("Putf: %v", err)
	}
	if got := client.retained["i/camd/etime"]; got != "2.5000" {
		t.Fatalf("retained = %q, want 2.5000", got)
	}
}

func TestPutBool(t *testing.T) {
	client := newFakeClient()
	r := New(client)

	if err := r.PutBool(PathServerRunning, true); err != nil {
		t.Fatalf("PutBool: %v", err)
	}
	if got := client.retained["i/camd/serverRunning"]; got != "true" {
		t.Fatalf("retained = %q, want true", got)
	}
}

func TestGetStringRoundTrip(t *testing.T) {
	client := newFakeClient()
	r := New(client)

	if err := r.PutString(PathDomeAz, "123.4"); err != nil {
		t.Fatalf("PutString: %v", err)
	}

	got, err := r.GetString(PathDomeAz)
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "123.4" {
		t.Fatalf("GetString = %q, want 123.4", got)
	}
}

func TestGetStringNoValue(t *testing.T) {
	defer func(d time.Duration) { opTimeout = d }(opTimeout)
	opTimeout = 20 * time.Millisecond

	r := New(newFakeClient())

	if _, err := r.GetString(PathDomeAz); !errors.Is(err, ErrNoValue) {
		t.Fatalf("GetString = %v, want ErrNoValue", err)
	}
}

func TestTouchCreatesPlaceholder(t *testing.T) {
	defer func(d time.Duration) { opTimeout = d }(opTimeout)
	opTimeout = 20 * time.Millisecond

	client := newFakeClient()
	r := New(client)

	if err := r.Touch(PathGain, "Gain Value"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	if _, ok := client.retained["i/camd/gain"]; !ok {
		t.Fatal("Touch did not create the topic")
	}
	if got := client.retained["i/camd/gain/meta/description"]; got != "Gain Value" {
		t.Fatalf("description = %q, want %q", got, "Gain Value")
	}
}

func TestTouchPreservesExistingValue(t *testing.T) {
	client := newFakeClient()
	r := New(client)

	if err := r.PutString(PathGain, "55"); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	if err := r.Touch(PathGain, "Gain Value"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if got := client.retained["i/camd/gain"]; got != "55" {
		t.Fatalf("retained = %q, want 55", got)
	}
}
