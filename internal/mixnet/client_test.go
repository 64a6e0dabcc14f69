package mixnet_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"privmsg/internal/crypto"
	"privmsg/internal/e2e"
	"privmsg/internal/metrics"
	"privmsg/internal/mixnet"
)

// fakeTransport records what it is asked to do.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	sendErr    error
	connected  bool
	sent       []mixnet.Message
	closes     int
}

func (f *fakeTransport) Connect(context.Context, mixnet.NetworkDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Send(_ context.Context, m mixnet.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

func definitionServer(t *testing.T) string {
	t.Helper()
	raw := definitionJSON(t, func(m map[string]any) {
		m["generated_at"] = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
		m["expires_at"] = time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(raw) }))
	t.Cleanup(srv.Close)
	return srv.URL
}

func testPayload(t *testing.T) e2e.Payload {
	t.Helper()
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	_, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	p, err := e2e.Seal(e2e.VersionCurrent, aPriv, aPub, bPub, []byte("hidden"))
	require.NoError(t, err)
	return p
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	tr := &fakeTransport{}
	c := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: definitionServer(t), Metrics: m}, tr)

	require.Equal(t, mixnet.StateUninitialized, c.State())
	msg, err := mixnet.NewMessage("bob", testPayload(t))
	require.NoError(t, err)
	require.ErrorIs(t, c.Send(ctx, msg), mixnet.ErrNotConnected)

	require.NoError(t, c.Initialize(ctx))
	require.Equal(t, mixnet.StateConnected, c.State())
	require.Equal(t, float64(mixnet.StateConnected), testutil.ToFloat64(m.MixnetState))
	def, ok := c.Definition()
	require.True(t, ok)
	require.Equal(t, "testnet", def.Network)

	require.NoError(t, c.Initialize(ctx), "second initialize is a no-op")
	require.NoError(t, c.Send(ctx, msg))
	require.Len(t, tr.sent, 1)
	require.Equal(t, msg.ID(), tr.sent[0].ID())

	c.Disconnect()
	c.Disconnect()
	require.Equal(t, mixnet.StateUninitialized, c.State())
	require.Equal(t, 2, tr.closes)
	require.ErrorIs(t, c.Send(ctx, msg), mixnet.ErrNotConnected)
}

func TestClient_BringUpFailureIsErrorState(t *testing.T) {
	ctx := context.Background()

	broken := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: "http://127.0.0.1:1/none"}, &fakeTransport{})
	err := broken.Initialize(ctx)
	require.ErrorIs(t, err, mixnet.ErrUnavailable)
	require.Equal(t, mixnet.StateError, broken.State())
	require.Error(t, broken.LastError())

	nop := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: definitionServer(t)}, mixnet.NopTransport{})
	err = nop.Initialize(ctx)
	require.ErrorIs(t, err, mixnet.ErrCapabilityMissing)
	require.Equal(t, mixnet.StateError, nop.State())

	nop.Disconnect()
	require.Equal(t, mixnet.StateUninitialized, nop.State())
}

func TestClient_Disabled(t *testing.T) {
	c := mixnet.NewClient(mixnet.Config{}, nil)
	require.ErrorIs(t, c.Initialize(context.Background()), mixnet.ErrDisabled)
	require.Equal(t, mixnet.StateUninitialized, c.State())
	require.False(t, c.Enabled())
}

func TestClient_InitializeTimeout(t *testing.T) {
	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hang.Close()

	c := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: hang.URL, InitTimeout: 100 * time.Millisecond}, &fakeTransport{})
	start := time.Now()
	require.ErrorIs(t, c.Initialize(context.Background()), mixnet.ErrUnavailable)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, mixnet.StateError, c.State())
}

func TestClient_SendFailureMovesToError(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	c := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: definitionServer(t)}, tr)
	require.NoError(t, c.Initialize(ctx))

	tr.mu.Lock()
	tr.sendErr = errors.New("daemon gone")
	tr.mu.Unlock()
	msg, err := mixnet.NewMessage("bob", testPayload(t))
	require.NoError(t, err)
	require.ErrorIs(t, c.Send(ctx, msg), mixnet.ErrUnavailable)
	require.Equal(t, mixnet.StateError, c.State())
}

func TestNewMessage_RejectsPlaintext(t *testing.T) {
	_, err := mixnet.NewMessage("bob", e2e.Payload{})
	require.ErrorIs(t, err, mixnet.ErrPlaintextContent)

	c := mixnet.NewClient(mixnet.Config{}, nil)
	require.ErrorIs(t, c.Send(context.Background(), mixnet.Message{}), mixnet.ErrPlaintextContent)
}

func TestMessageIDsAndReferencesAreRandom(t *testing.T) {
	p := testPayload(t)
	a, err := mixnet.NewMessage("bob", p)
	require.NoError(t, err)
	b, err := mixnet.NewMessage("bob", p)
	require.NoError(t, err)
	require.NotEqual(t, a.ID(), b.ID())

	c := mixnet.NewClient(mixnet.Config{}, nil)
	ref := c.AnonymizedReference()
	raw, err := base58.Decode(ref)
	require.NoError(t, err)
	require.Len(t, raw, 16)
	require.NotEqual(t, ref, c.AnonymizedReference())
}

// gatedTransport blocks in Connect until released.
type gatedTransport struct {
	fakeTransport
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Connect(ctx context.Context, def mixnet.NetworkDefinition) error {
	close(g.entered)
	<-g.release
	return g.fakeTransport.Connect(ctx, def)
}

func TestClient_DisconnectDuringInitializeWins(t *testing.T) {
	tr := &gatedTransport{entered: make(chan struct{}), release: make(chan struct{})}
	c := mixnet.NewClient(mixnet.Config{Enabled: true, DefinitionURL: definitionServer(t)}, tr)

	initDone := make(chan error, 1)
	go func() { initDone <- c.Initialize(context.Background()) }()
	<-tr.entered

	discDone := make(chan struct{})
	go func() {
		c.Disconnect()
		close(discDone)
	}()
	time.Sleep(20 * time.Millisecond)
	close(tr.release)

	require.NoError(t, <-initDone)
	<-discDone
	require.Equal(t, mixnet.StateUninitialized, c.State())
	_, ok := c.Definition()
	require.False(t, ok)
}
