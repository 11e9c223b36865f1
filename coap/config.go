// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import (
	"time"

	"github.com/pion/dtls/v2"

	"github.com/coapframework/coapd/internal/session"
)

// Config is the server configuration surface of §6, bound from the
// environment the way cmd/alarms/main.go binds its service configs:
// struct tags consumed by caarlos0/env.
type Config struct {
	BindAddr string `env:"COAP_BIND_ADDR" envDefault:":5683"`

	AckTimeout       time.Duration `env:"COAP_ACK_TIMEOUT" envDefault:"2s"`
	AckRandomFactor  float64       `env:"COAP_ACK_RANDOM_FACTOR" envDefault:"1.5"`
	MaxRetransmit    int           `env:"COAP_MAX_RETRANSMIT" envDefault:"4"`
	NStart           int           `env:"COAP_NSTART" envDefault:"1"`
	ExchangeLifetime time.Duration `env:"COAP_EXCHANGE_LIFETIME" envDefault:"247s"`
	InboxSize        int           `env:"COAP_SESSION_INBOX_SIZE" envDefault:"32"`

	// MaxMessageSize bounds the payload Json/Cbor extractors accept
	// (§4.2/§6); a request whose payload exceeds it is rejected with
	// 4.13 Request Entity Too Large (§7 kind 3) before decoding.
	MaxMessageSize int `env:"COAP_MAX_MESSAGE_SIZE" envDefault:"1152"`

	// NotifyConfirmable selects CON vs NON for outgoing notifications.
	NotifyConfirmable bool `env:"COAP_NOTIFY_CONFIRMABLE" envDefault:"true"`

	// ObserverBackend selects the observer store: "memory" or "bolt".
	ObserverBackend string `env:"COAP_OBSERVER_BACKEND" envDefault:"memory"`
	ObserverDBPath  string `env:"COAP_OBSERVER_DB_PATH" envDefault:"observers.db"`

	// BrokerURL, when set, switches the mutation bus to NATS so
	// multiple server instances sharing one observer backend learn of
	// each other's mutations; empty keeps the zero-dependency local bus.
	BrokerURL     string `env:"COAP_BROKER_URL" envDefault:""`
	BrokerSubject string `env:"COAP_BROKER_SUBJECT" envDefault:"coap.mutations"`

	// DTLS, when non-nil, switches the transport to DTLS 1.2 PSK.
	DTLS *DTLSConfig

	// MetricsEnabled wraps the router in NewMetricsMiddleware before
	// handing it to the session manager, exporting request count and
	// latency via the default Prometheus registerer.
	MetricsEnabled   bool   `env:"COAP_METRICS_ENABLED" envDefault:"false"`
	MetricsNamespace string `env:"COAP_METRICS_NAMESPACE" envDefault:"coapd"`
	MetricsSubsystem string `env:"COAP_METRICS_SUBSYSTEM" envDefault:"server"`
}

// DTLSConfig is the PSK configuration surface of §6. There is no env
// binding for the PSK lookup callback itself — credential material is
// application-supplied, never read from the environment directly.
type DTLSConfig struct {
	LookupKey            func(identityHint []byte) ([]byte, error)
	IdentityHint         []byte
	CipherSuites         []dtls.CipherSuiteID
	ExtendedMasterSecret dtls.ExtendedMasterSecretType
	HandshakeTimeout     time.Duration
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		AckTimeout:       c.AckTimeout,
		AckRandomFactor:  c.AckRandomFactor,
		MaxRetransmit:    c.MaxRetransmit,
		NStart:           c.NStart,
		ExchangeLifetime: c.ExchangeLifetime,
		InboxSize:        c.InboxSize,
	}
}
