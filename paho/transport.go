// Package paho implements mqttsvc.Transport on top of the Eclipse Paho
// MQTT client.
package paho

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/srishina/mqttsvc"
)

// ErrClosed is returned by operations on a closed Transport
var ErrClosed = errors.New("paho: transport closed")

// Transport is a mqttsvc.Transport backed by a paho client
type Transport struct {
	client   mqtt.Client
	config   Config
	log      *log.Entry
	server   atomic.Value
	closed   atomic.Bool
	callerMu sync.RWMutex
	callback mqttsvc.Callback
	// dialing is set while a Connect issued through the Transport is in flight
	dialing atomic.Bool
}

var _ mqttsvc.Transport = (*Transport)(nil)

// New creates a transport connecting as clientID with the given settings
func New(clientID string, cfg Config, logger *log.Logger) (*Transport, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client id must be set", mqttsvc.ErrValidation)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	t := &Transport{
		config: cfg,
		log:    logger.WithFields(log.Fields{"client_id": clientID, "component": "paho"}),
	}
	opts, err := t.clientOptions(clientID)
	if err != nil {
		return nil, err
	}
	t.client = mqtt.NewClient(opts)
	return t, nil
}

func (t *Transport) clientOptions(clientID string) (*mqtt.ClientOptions, error) {
	tlsCfg, err := t.config.TLS.tlsConfig()
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	for _, b := range t.config.Brokers {
		opts.AddBroker(b)
	}
	opts.SetClientID(clientID)
	opts.SetUsername(t.config.Username)
	opts.SetPassword(t.config.Password)
	opts.SetCleanSession(!t.config.PersistentSession)
	opts.SetKeepAlive(t.config.KeepAlive)
	opts.SetPingTimeout(t.config.PingTimeout)
	opts.SetWriteTimeout(t.config.WriteTimeout)
	opts.SetConnectTimeout(t.config.ConnectTimeout)
	opts.SetAutoReconnect(t.config.AutoReconnect)
	opts.SetMaxReconnectInterval(t.config.MaxReconnectInterval)
	opts.SetConnectRetry(false)
	if tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}
	if w := t.config.Will; w != nil {
		opts.SetWill(w.Topic, w.Payload, w.QoS.Level(), w.Retained)
	}

	opts.SetConnectionAttemptHandler(func(broker *url.URL, cfg *tls.Config) *tls.Config {
		t.server.Store(broker.String())
		return cfg
	})
	opts.SetCustomOpenConnectionFn(t.openConnection)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		t.log.Info("Reconnecting to broker")
	})
	opts.SetDefaultPublishHandler(t.onMessage)
	return opts, nil
}

// openConnection dials tcp and tls brokers directly and websocket brokers
// through gorilla/websocket
func (t *Transport) openConnection(uri *url.URL, options mqtt.ClientOptions) (net.Conn, error) {
	timeout := options.ConnectTimeout
	switch strings.ToLower(uri.Scheme) {
	case "ws", "wss":
		ctx, cf := context.WithTimeout(context.Background(), timeout)
		defer cf()
		return dialWebsocket(ctx, uri, options.TLSConfig, options.HTTPHeaders, timeout)
	case "ssl", "tls", "mqtts":
		tlsCfg := options.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", uri.Host, tlsCfg)
	default:
		return net.DialTimeout("tcp", uri.Host, timeout)
	}
}

func (t *Transport) currentCallback() mqttsvc.Callback {
	t.callerMu.RLock()
	defer t.callerMu.RUnlock()
	return t.callback
}

func (t *Transport) onConnect(mqtt.Client) {
	reconnect := !t.dialing.Swap(false)
	server, _ := t.CurrentServerURI()
	t.log.WithFields(log.Fields{"server": server, "reconnect": reconnect}).Info("Connected to broker")
	if cb := t.currentCallback(); cb != nil {
		cb.ConnectComplete(reconnect, server)
	}
}

func (t *Transport) onConnectionLost(_ mqtt.Client, err error) {
	t.log.WithError(err).Warn("Connection to broker lost")
	if cb := t.currentCallback(); cb != nil {
		cb.ConnectionLost(err)
	}
}

func (t *Transport) onMessage(_ mqtt.Client, m mqtt.Message) {
	cb := t.currentCallback()
	if cb == nil {
		return
	}
	cb.MessageArrived(mqttsvc.Message{
		Topic:     m.Topic(),
		Payload:   m.Payload(),
		QoS:       mqttsvc.QoSFromLevel(int(m.Qos())),
		Retained:  m.Retained(),
		Duplicate: m.Duplicate(),
		MessageID: m.MessageID(),
	})
}

// SetCallback implements mqttsvc.Transport
func (t *Transport) SetCallback(cb mqttsvc.Callback) {
	t.callerMu.Lock()
	defer t.callerMu.Unlock()
	t.callback = cb
}

// Connect implements mqttsvc.Transport
func (t *Transport) Connect() mqttsvc.Token {
	if t.closed.Load() {
		return failedToken(ErrClosed)
	}
	t.dialing.Store(true)
	token := t.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			t.dialing.Store(false)
		}
	}()
	return token
}

// Subscribe implements mqttsvc.Transport, messages are delivered to the callback
func (t *Transport) Subscribe(topicFilter string, qos mqttsvc.QoS) mqttsvc.Token {
	if t.closed.Load() {
		return failedToken(ErrClosed)
	}
	return t.client.Subscribe(topicFilter, qos.Level(), nil)
}

// Unsubscribe implements mqttsvc.Transport
func (t *Transport) Unsubscribe(topicFilter string) mqttsvc.Token {
	if t.closed.Load() {
		return failedToken(ErrClosed)
	}
	return t.client.Unsubscribe(topicFilter)
}

// Publish implements mqttsvc.Transport
func (t *Transport) Publish(topic string, payload []byte, qos mqttsvc.QoS, retained bool) (mqttsvc.DeliveryToken, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	token := t.client.Publish(topic, qos.Level(), retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, err
		}
	default:
	}
	var id uint16
	if pt, ok := token.(*mqtt.PublishToken); ok {
		id = pt.MessageID()
	}
	return deliveryToken{Token: token, id: id}, nil
}

// Disconnect implements mqttsvc.Transport, in flight work is given up to
// timeout to complete
func (t *Transport) Disconnect(timeout time.Duration) error {
	t.client.Disconnect(uint(timeout.Milliseconds()))
	if t.client.IsConnectionOpen() {
		return fmt.Errorf("paho: connection still open after disconnect")
	}
	return nil
}

// DisconnectForcibly implements mqttsvc.Transport, it drops the connection
// without waiting for in flight work and returns once it is closed
func (t *Transport) DisconnectForcibly(timeout time.Duration) error {
	t.client.Disconnect(0)
	deadline := time.Now().Add(timeout)
	for t.client.IsConnectionOpen() || t.client.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("paho: connection still open after %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// CancelReconnect implements mqttsvc.Transport. paho reports a client that is
// reconnecting as connected while its connection is not open, a disconnect
// aborts the reconnect loop.
func (t *Transport) CancelReconnect(timeout time.Duration) error {
	if !t.client.IsConnected() || t.client.IsConnectionOpen() {
		return nil
	}
	t.log.Info("Cancelling reconnect")
	return t.DisconnectForcibly(timeout)
}

// IsConnected implements mqttsvc.Transport. It reports the state of the
// network connection, not whether paho intends to reconnect.
func (t *Transport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

// CurrentServerURI implements mqttsvc.Transport
func (t *Transport) CurrentServerURI() (string, bool) {
	server, ok := t.server.Load().(string)
	return server, ok && server != ""
}

// AutoReconnect implements mqttsvc.Transport
func (t *Transport) AutoReconnect() bool {
	r := t.client.OptionsReader()
	return r.AutoReconnect()
}

// Close implements mqttsvc.Transport
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	// also stops a reconnect in progress
	t.client.Disconnect(0)
	return nil
}

type deliveryToken struct {
	mqtt.Token
	id uint16
}

func (d deliveryToken) MessageID() uint16 {
	return d.id
}

type doneToken struct {
	done chan struct{}
	err  error
}

func failedToken(err error) mqttsvc.Token {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Done() <-chan struct{} {
	return t.done
}

func (t *doneToken) Error() error {
	return t.err
}
