package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"privmsg/internal/directory"
	"privmsg/internal/domain"
	"privmsg/internal/metrics"
	"privmsg/internal/mixnet"
	"privmsg/internal/services/conversation"
	"privmsg/internal/services/keystore"
	"privmsg/internal/services/privacy"
	"privmsg/internal/store"
	"privmsg/internal/util/privacylog"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config        Config
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Directory     *directory.HTTP
	Messages      *store.BoltMessageStore
	Keys          *keystore.Service
	Mixnet        *mixnet.Client
	Privacy       *privacy.Service
	Conversations *conversation.Service
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config: user is required (--user or PRIVMSG_USER)")
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	level, _ := parseLevel(cfg.LogLevel)
	out := cfg.LogWriter
	if out == nil {
		out = os.Stderr
	}
	logger := privacylog.New(out, cfg.LogFormat, level)
	m := metrics.New()

	// Directory and network-definition requests share one client.
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	dir := directory.NewHTTP(cfg.KeydirURL)
	dir.HTTP = httpClient

	rings := store.NewKeyringFileStore(cfg.Home)
	peers := store.NewPeerKeyFileStore(cfg.Home, cfg.KeyRetention)
	msgs, err := store.OpenBoltMessageStore(filepath.Join(cfg.Home, store.MessagesFilename))
	if err != nil {
		return nil, err
	}

	user := domain.UserID(cfg.User)
	keys := keystore.New(keystore.Config{
		User:          user,
		Passphrase:    cfg.Passphrase,
		LookupTimeout: cfg.KeyLookupTimeout,
		Retention:     cfg.KeyRetention,
		Logger:        logger,
		Metrics:       m,
	}, rings, peers, dir)

	var transport mixnet.Transport = mixnet.NopTransport{}
	if cfg.Mixnet.Enabled {
		transport = mixnet.NewThinTransport(cfg.Mixnet.DaemonNetwork, cfg.Mixnet.DaemonAddress)
	}
	mix := mixnet.NewClient(mixnet.Config{
		Enabled:       cfg.Mixnet.Enabled,
		DefinitionURL: cfg.Mixnet.DefinitionURL,
		InitTimeout:   cfg.Mixnet.InitTimeout,
		SendTimeout:   cfg.Mixnet.SendTimeout,
		HTTPClient:    httpClient,
		Logger:        logger,
		Metrics:       m,
	}, transport)

	priv := privacy.New(privacy.Config{
		LookupRetries: cfg.LookupRetries,
		Logger:        logger,
		Metrics:       m,
	}, keys, mix)

	conv := conversation.New(conversation.Config{User: user, Logger: logger}, msgs, priv, keys, dir)

	return &Wire{
		Config:        cfg,
		Logger:        logger,
		Metrics:       m,
		Directory:     dir,
		Messages:      msgs,
		Keys:          keys,
		Mixnet:        mix,
		Privacy:       priv,
		Conversations: conv,
	}, nil
}

// Close releases the mixnet connection and the message database.
func (w *Wire) Close() error {
	w.Mixnet.Disconnect()
	return w.Messages.Close()
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unsupported log level %q", s)
	}
	return l, nil
}
