package paho

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srishina/mqttsvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no brokers", cfg: Config{}},
		{name: "bad scheme", cfg: Config{Brokers: []string{"http://localhost:80"}}},
		{name: "missing host", cfg: Config{Brokers: []string{"tcp://"}}},
		{name: "unparsable", cfg: Config{Brokers: []string{"tcp://%zz"}}},
		{name: "will wildcard", cfg: Config{Brokers: []string{"tcp://b:1883"}, Will: &Will{Topic: "a/#"}}},
		{name: "will qos", cfg: Config{Brokers: []string{"tcp://b:1883"}, Will: &Will{Topic: "a", QoS: 3}}},
		{name: "cert without key", cfg: Config{Brokers: []string{"ssl://b:8883"}, TLS: TLSConfig{CertFile: "c.pem"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, mqttsvc.ErrValidation))
		})
	}

	ok := Config{Brokers: []string{"tcp://b:1883", "ws://b:8083/mqtt", "wss://b:443", "ssl://b:8883"}}
	assert.NoError(t, ok.Validate())
}

func TestTLSConfig(t *testing.T) {
	cfg, err := TLSConfig{}.tlsConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = TLSConfig{InsecureSkipVerify: true}.tlsConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = TLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")}.tlsConfig()
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a certificate"), 0o600))
	_, err = TLSConfig{CAFile: empty}.tlsConfig()
	assert.Error(t, err)
}

func TestNewTransportOptions(t *testing.T) {
	cfg := Config{
		Brokers:           []string{"tcp://broker.local:1883"},
		Username:          "user",
		Password:          "secret",
		PersistentSession: true,
		KeepAlive:         15 * time.Second,
		ConnectTimeout:    5 * time.Second,
		AutoReconnect:     true,
		Will:              &Will{Topic: "clients/c1", Payload: "gone", QoS: mqttsvc.AtLeastOnce, Retained: true},
	}
	tr, err := New("c1", cfg, nil)
	require.NoError(t, err)

	r := tr.client.OptionsReader()
	require.Len(t, r.Servers(), 1)
	assert.Equal(t, "broker.local:1883", r.Servers()[0].Host)
	assert.Equal(t, "c1", r.ClientID())
	assert.Equal(t, "user", r.Username())
	assert.False(t, r.CleanSession())
	assert.Equal(t, 15*time.Second, r.KeepAlive())
	assert.Equal(t, 5*time.Second, r.ConnectTimeout())
	assert.True(t, r.AutoReconnect())
	assert.True(t, tr.AutoReconnect())
	assert.True(t, r.WillEnabled())
	assert.Equal(t, "clients/c1", r.WillTopic())
	assert.Equal(t, []byte("gone"), r.WillPayload())
	assert.Equal(t, byte(1), r.WillQos())
	assert.True(t, r.WillRetained())

	assert.False(t, tr.IsConnected())
	_, ok := tr.CurrentServerURI()
	assert.False(t, ok)
}

func TestNewTransportValidation(t *testing.T) {
	_, err := New(" ", Config{}, nil)
	assert.True(t, errors.Is(err, mqttsvc.ErrValidation))

	_, err = New("c1", Config{Brokers: []string{"udp://b:1"}}, nil)
	assert.True(t, errors.Is(err, mqttsvc.ErrValidation))
}

func TestClosedTransport(t *testing.T) {
	tr, err := New("c1", Config{}, nil)
	require.NoError(t, err)
	// nothing to cancel on an idle transport
	require.NoError(t, tr.CancelReconnect(time.Second))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	tok := tr.Connect()
	<-tok.Done()
	assert.True(t, errors.Is(tok.Error(), ErrClosed))

	tok = tr.Subscribe("a", mqttsvc.AtMostOnce)
	<-tok.Done()
	assert.True(t, errors.Is(tok.Error(), ErrClosed))

	_, err = tr.Publish("a", []byte("x"), mqttsvc.AtMostOnce, false)
	assert.True(t, errors.Is(err, ErrClosed))
}
