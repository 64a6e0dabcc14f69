package privacy_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"privmsg/internal/directory"
	"privmsg/internal/domain"
	"privmsg/internal/e2e"
	"privmsg/internal/metrics"
	"privmsg/internal/mixnet"
	"privmsg/internal/services/keystore"
	"privmsg/internal/services/privacy"
	"privmsg/internal/store"
)

const pass = "Correct-Horse-9!"

// keydir runs a real directory server with switchable faults.
type keydir struct {
	url         string
	keyGets     atomic.Int32
	failGets    atomic.Int32 // number of upcoming GET /keys to fail
	failPublish atomic.Bool
}

func newKeydir(t *testing.T) *keydir {
	t.Helper()
	kd := &keydir{}
	inner := directory.NewServer(directory.ServerOptions{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/keys/") {
			if r.Method == http.MethodGet {
				kd.keyGets.Add(1)
				if kd.failGets.Load() > 0 {
					kd.failGets.Add(-1)
					http.Error(w, "overloaded", http.StatusServiceUnavailable)
					return
				}
			}
			if r.Method == http.MethodPut && kd.failPublish.Load() {
				http.Error(w, "read only", http.StatusServiceUnavailable)
				return
			}
		}
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	kd.url = srv.URL
	return kd
}

// fakeMixnet is a controllable privacy.Mixnet.
type fakeMixnet struct {
	mu        sync.Mutex
	enabled   bool
	connected bool
	initErr   error
	sendErr   error
	sent      []mixnet.Message
}

func (f *fakeMixnet) Enabled() bool { return f.enabled }
func (f *fakeMixnet) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakeMixnet) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.connected = true
	return nil
}
func (f *fakeMixnet) Send(_ context.Context, m mixnet.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

type user struct {
	keys    *keystore.Service
	privacy *privacy.Service
	mix     *fakeMixnet
	metrics *metrics.Metrics
}

func newUser(t *testing.T, kd *keydir, id domain.UserID, mix *fakeMixnet) *user {
	t.Helper()
	home := t.TempDir()
	m := metrics.New()
	ks := keystore.New(
		keystore.Config{User: id, Passphrase: pass, LookupTimeout: time.Second, Metrics: m},
		store.NewKeyringFileStoreWithParams(home, store.ScryptParams{N: 1 << 10, R: 8, P: 1}),
		store.NewPeerKeyFileStore(home, 0),
		directory.NewHTTP(kd.url),
	)
	if mix == nil {
		mix = &fakeMixnet{}
	}
	svc := privacy.New(privacy.Config{RetryInterval: 10 * time.Millisecond, Metrics: m}, ks, mix)
	return &user{keys: ks, privacy: svc, mix: mix, metrics: m}
}

func TestEndToEnd_AliceToBob(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	alice := newUser(t, kd, "alice", nil)
	bob := newUser(t, kd, "bob", nil)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	require.NoError(t, bob.privacy.InitializePrivacy(ctx))

	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("hello"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.MixnetRouted)
	require.NotNil(t, res.EncryptedContent)
	require.NotContains(t, string(res.EncryptedContent.Ciphertext()), "hello")

	pt, err := bob.privacy.DecryptMessage(ctx, *res.EncryptedContent, "alice")
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))
	require.Equal(t, domain.PrivacyPartial, alice.privacy.PrivacyStatus().Level)
}

func TestSend_FailsClosedWhenRecipientNotOpted(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	mix := &fakeMixnet{enabled: true, connected: true}
	alice := newUser(t, kd, "alice", mix)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))

	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("secret"))
	require.ErrorIs(t, err, keystore.ErrPeerNotOpted)
	require.False(t, res.Success)
	require.Nil(t, res.EncryptedContent)
	require.NotEmpty(t, res.Error)
	require.NotEmpty(t, res.MessageID)
	require.Empty(t, mix.sent, "nothing may reach the transport")
	require.Equal(t, int32(1), kd.keyGets.Load(), "not-opted is not retried")
	require.Equal(t, 1.0, testutil.ToFloat64(alice.metrics.Sends.WithLabelValues(metrics.OutcomeNotOpted)))
}

func TestSend_RetriesTransientLookupFailure(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	alice := newUser(t, kd, "alice", nil)
	bob := newUser(t, kd, "bob", nil)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	require.NoError(t, bob.privacy.InitializePrivacy(ctx))

	kd.keyGets.Store(0)
	kd.failGets.Store(2)
	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("eventually"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int32(3), kd.keyGets.Load())
}

func TestSend_GivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	alice := newUser(t, kd, "alice", nil)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))

	kd.keyGets.Store(0)
	kd.failGets.Store(100)
	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("never"))
	require.ErrorIs(t, err, keystore.ErrLookupFailed)
	require.False(t, res.Success)
	require.Nil(t, res.EncryptedContent)
	require.Equal(t, int32(1+privacy.DefaultLookupRetries), kd.keyGets.Load())
}

func TestSend_MixnetRoutingIsBestEffort(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	mix := &fakeMixnet{enabled: true}
	alice := newUser(t, kd, "alice", mix)
	bob := newUser(t, kd, "bob", nil)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	require.NoError(t, bob.privacy.InitializePrivacy(ctx))
	require.True(t, mix.IsConnected())

	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("routed"))
	require.NoError(t, err)
	require.True(t, res.MixnetRouted)
	require.Len(t, mix.sent, 1)
	require.True(t, mix.sent[0].Payload().Equal(*res.EncryptedContent))
	require.NotEqual(t, res.MessageID, mix.sent[0].ID(), "mixnet id is independent of the message id")

	mix.mu.Lock()
	mix.sendErr = errors.New("daemon gone")
	mix.mu.Unlock()
	res, err = alice.privacy.SendPrivateMessage(ctx, "bob", []byte("fallback"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.MixnetRouted)
	require.NotNil(t, res.EncryptedContent)
}

func TestInitialize_ToleratesPublishAndMixnetFailure(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	kd.failPublish.Store(true)
	mix := &fakeMixnet{enabled: true, initErr: mixnet.ErrUnavailable}
	alice := newUser(t, kd, "alice", mix)

	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	require.True(t, alice.keys.HasKeyPair())
	require.Equal(t, domain.PrivacyPartial, alice.privacy.PrivacyStatus().Level)

	kd.failPublish.Store(false)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	_, err := directory.NewHTTP(kd.url).FetchKey(ctx, "alice")
	require.NoError(t, err, "key is published on the next initialize")
}

func TestPrivacyStatus_IsLive(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	mix := &fakeMixnet{enabled: true}
	alice := newUser(t, kd, "alice", mix)

	require.Equal(t, domain.PrivacyNone, alice.privacy.PrivacyStatus().Level)
	require.NoError(t, alice.keys.GenerateAndStoreKeyPair(ctx))
	require.Equal(t, domain.PrivacyPartial, alice.privacy.PrivacyStatus().Level)
	require.NoError(t, mix.Initialize(ctx))
	require.Equal(t, domain.PrivacyFull, alice.privacy.PrivacyStatus().Level)

	mix.mu.Lock()
	mix.connected = false
	mix.mu.Unlock()
	st := alice.privacy.PrivacyStatus()
	require.Equal(t, domain.PrivacyPartial, st.Level)
	require.NotEmpty(t, st.Description)
}

func TestSend_LazilyCreatesKeyPair(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	alice := newUser(t, kd, "alice", nil)
	bob := newUser(t, kd, "bob", nil)
	require.NoError(t, bob.privacy.InitializePrivacy(ctx))

	require.False(t, alice.keys.HasKeyPair())
	res, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("first"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, alice.keys.HasKeyPair())
}

func TestSendResult_IDsAndJSON(t *testing.T) {
	ctx := context.Background()
	kd := newKeydir(t)
	alice := newUser(t, kd, "alice", nil)
	bob := newUser(t, kd, "bob", nil)
	require.NoError(t, alice.privacy.InitializePrivacy(ctx))
	require.NoError(t, bob.privacy.InitializePrivacy(ctx))

	first, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("a"))
	require.NoError(t, err)
	second, err := alice.privacy.SendPrivateMessage(ctx, "bob", []byte("a"))
	require.NoError(t, err)
	require.NotEqual(t, first.MessageID, second.MessageID)
	_, err = uuid.Parse(first.MessageID)
	require.NoError(t, err)

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, true, m["success"])
	require.Equal(t, first.MessageID, m["message_id"])
	require.Equal(t, false, m["mixnet_routed"])
	require.NotContains(t, m, "error")
	content := m["encrypted_content"].(map[string]any)
	require.EqualValues(t, e2e.VersionCurrent, content["v"])

	failed, _ := alice.privacy.SendPrivateMessage(ctx, "nobody", []byte("a"))
	raw, err = json.Marshal(failed)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"encrypted_content":null`)
}
