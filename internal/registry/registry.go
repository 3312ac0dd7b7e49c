package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrRegistry = errors.New("registry error")
	ErrNoValue  = errors.New("no value at registry path")
)

// Well-known registry paths. The /i tree holds instrument state owned
// by this daemon; the /t tree is telescope telemetry owned elsewhere.
const (
	PathEtime         = "/i/camd/etime"
	PathGain          = "/i/camd/gain"
	PathHostname      = "/i/camd/hostname"
	PathIPAddress     = "/i/camd/ipAddress"
	PathPort          = "/i/camd/port"
	PathServerRunning = "/i/camd/serverRunning"
	PathTemperature   = "/i/camd/temperature"
	PathPressure      = "/i/camd/pressure"
	PathHumidity      = "/i/camd/humidity"
	PathDomeAz        = "/t/status/domeAz"
)

// Fixed backoff between connection attempts.
const connectRetryInterval = 10 * time.Second

// Bound on any single publish/subscribe handshake. Variable so tests
// can shorten the no-value wait.
var opTimeout = 5 * time.Second

// Connection settings for the registry broker.
type Config struct {
	Broker   string // host:port of the MQTT broker.
	ClientID string
}

// A connected registry client.
type Registry struct {
	client mqtt.Client
}

// Wraps an existing MQTT client. Used by tests; production code goes
// through Connect.
func New(client mqtt.Client) *Registry {
	return &Registry{client: client}
}

// Dials the broker, retrying indefinitely with a fixed backoff until
// the context is cancelled.
func Connect(ctx context.Context, cfg Config) (*Registry, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("registry connection lost, reconnecting", "error", err)
	}

	client := mqtt.NewClient(opts)

	for {
		token := client.Connect()
		if token.WaitTimeout(opTimeout) && token.Error() == nil {
			slog.Info("registry connected", "broker", cfg.Broker)
			return &Registry{client: client}, nil
		}

		slog.Warn("registry connection failed, retry in progress",
			"broker", cfg.Broker,
			"error", token.Error(),
			"backoff", connectRetryInterval,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: connect: %v", ErrRegistry, ctx.Err())
		case <-time.After(connectRetryInterval):
		}
	}
}

func (r *Registry) Close() {
	r.client.Disconnect(250)
}

// Reads the current value at a path. Returns ErrNoValue if nothing is
// retained there within the operation timeout.
func (r *Registry) GetString(path string) (string, error) {
	ch := make(chan string, 1)

	token := r.client.Subscribe(topic(path), 1, func(c mqtt.Client, m mqtt.Message) {
		select {
		case ch <- string(m.Payload()):
		default:
		}
	})
	if !token.WaitTimeout(opTimeout) || token.Error() != nil {
		return "", fmt.Errorf("%w: subscribe %s: %v", ErrRegistry, path, token.Error())
	}
	defer r.client.Unsubscribe(topic(path))

	select {
	case v := <-ch:
		return v, nil
	case <-time.After(opTimeout):
		return "", fmt.Errorf("%w: %s", ErrNoValue, path)
	}
}

// Writes a value at a path as a retained message.
func (r *Registry) PutString(path, value string) error {
	token := r.client.Publish(topic(path), 1, true, value)
	if !token.WaitTimeout(opTimeout) || token.Error() != nil {
		return fmt.Errorf("%w: put %s: %v", ErrRegistry, path, token.Error())
	}
	return nil
}

// Writes a formatted numeric value at a path.
func (r *Registry) Putf(path, format string, args ...any) error {
	return r.PutString(path, fmt.Sprintf(format, args...))
}

// Writes a boolean value at a path.
func (r *Registry) PutBool(path string, value bool) error {
	return r.PutString(path, strconv.FormatBool(value))
}

// Ensures a path exists: republishes the current value if one is
// retained, or an empty placeholder otherwise, and records the
// human-readable description alongside it.
func (r *Registry) Touch(path, description string) error {
	value, err := r.GetString(path)
	if err != nil && !errors.Is(err, ErrNoValue) {
		return err
	}

	if err := r.PutString(path, value); err != nil {
		return err
	}
	return r.PutString(path+"/meta/description", description)
}

// Maps a registry path to its broker topic.
func topic(path string) string {
	return strings.TrimPrefix(path, "/")
}
