package e2e_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"golang.org/x/crypto/nacl/box"

	"privmsg/internal/crypto"
	"privmsg/internal/domain"
	"privmsg/internal/e2e"
)

type party struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func newParty(t *testing.T) party {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return party{priv: priv, pub: pub}
}

func seal(t *testing.T, from, to party, msg string) e2e.Payload {
	t.Helper()
	p, err := e2e.Seal(e2e.VersionCurrent, from.priv, from.pub, to.pub, []byte(msg))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	a, b := newParty(t), newParty(t)
	for _, msg := range []string{"", "hi", string(bytes.Repeat([]byte("x"), 64<<10))} {
		p := seal(t, a, b, msg)
		if p.Version() != e2e.VersionCurrent {
			t.Fatalf("version = %d", p.Version())
		}
		pt, err := e2e.Open(p, b.priv, b.pub, a.pub)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if string(pt) != msg {
			t.Fatalf("plaintext mismatch for len %d", len(msg))
		}
	}
}

func TestSenderCanReadOwnMessage(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "note to self")
	pt, err := e2e.Open(p, a.priv, a.pub, b.pub)
	if err != nil {
		t.Fatalf("Open by sender: %v", err)
	}
	if string(pt) != "note to self" {
		t.Fatalf("got %q", pt)
	}
}

func TestPerPairIndependence(t *testing.T) {
	a, b, c := newParty(t), newParty(t), newParty(t)
	pb := seal(t, a, b, "same text")
	pc := seal(t, a, c, "same text")
	if bytes.Equal(pb.Ciphertext(), pc.Ciphertext()) {
		t.Fatal("ciphertexts for different peers are identical")
	}
	if _, err := e2e.Open(pb, c.priv, c.pub, a.pub); !errors.Is(err, e2e.ErrKeyMismatch) {
		t.Fatalf("third party open: want ErrKeyMismatch, got %v", err)
	}
	again := seal(t, a, b, "same text")
	if bytes.Equal(pb.Ciphertext(), again.Ciphertext()) {
		t.Fatal("two seals of the same text are identical")
	}
}

func TestTamperDetected(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "do not touch")
	ct := p.Ciphertext()
	for _, i := range []int{0, 23, 24, len(ct) - 1} {
		mut := bytes.Clone(ct)
		mut[i] ^= 0x01
		tp, err := e2e.ParsePayload(p.Version(), base64.StdEncoding.EncodeToString(mut))
		if err != nil {
			t.Fatalf("ParsePayload: %v", err)
		}
		_, err = e2e.Open(tp, b.priv, b.pub, a.pub)
		if !errors.Is(err, e2e.ErrKeyMismatch) {
			t.Fatalf("flip byte %d: want ErrKeyMismatch, got %v", i, err)
		}
	}
}

func TestVersionTagIsAuthenticated(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "tagged")
	relabeled, err := e2e.ParsePayload(e2e.VersionLegacy, p.Encode())
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if _, err := e2e.Open(relabeled, b.priv, b.pub, a.pub); !errors.Is(err, e2e.ErrKeyMismatch) {
		t.Fatalf("want ErrKeyMismatch, got %v", err)
	}
}

func TestUnknownVersion(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "x")
	_, err := e2e.ParsePayload(99, p.Encode())
	if !errors.Is(err, e2e.ErrVersionMismatch) {
		t.Fatalf("want ErrVersionMismatch, got %v", err)
	}
	if e2e.KindOf(err) != e2e.KindVersionMismatch {
		t.Fatalf("KindOf = %v", e2e.KindOf(err))
	}
	if _, err := e2e.Seal(e2e.VersionLegacy, a.priv, a.pub, b.pub, []byte("x")); !errors.Is(err, e2e.ErrVersionMismatch) {
		t.Fatalf("sealing legacy: want ErrVersionMismatch, got %v", err)
	}
}

func TestCorruptPayload(t *testing.T) {
	if _, err := e2e.ParsePayload(e2e.VersionCurrent, "!!not base64!!"); !errors.Is(err, e2e.ErrCorruptPayload) {
		t.Fatalf("bad base64: want ErrCorruptPayload, got %v", err)
	}
	short := base64.StdEncoding.EncodeToString(make([]byte, 10))
	if _, err := e2e.ParsePayload(e2e.VersionCurrent, short); !errors.Is(err, e2e.ErrCorruptPayload) {
		t.Fatalf("short: want ErrCorruptPayload, got %v", err)
	}
	var de *e2e.DecryptError
	_, err := e2e.ParsePayload(e2e.VersionCurrent, short)
	if !errors.As(err, &de) || de.Kind != e2e.KindCorruptPayload {
		t.Fatalf("want *DecryptError with corrupt kind, got %#v", err)
	}
}

func TestLegacyBoxDecrypts(t *testing.T) {
	a, b := newParty(t), newParty(t)
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatal(err)
	}
	bPub, aPriv := [32]byte(b.pub), [32]byte(a.priv)
	ct := box.Seal(nonce[:], []byte("from the old days"), &nonce, &bPub, &aPriv)

	p, err := e2e.ParsePayload(e2e.VersionLegacy, base64.StdEncoding.EncodeToString(ct))
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	pt, err := e2e.Open(p, b.priv, b.pub, a.pub)
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}
	if string(pt) != "from the old days" {
		t.Fatalf("got %q", pt)
	}
}

func TestCiphertextAccessorCopies(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "immutable")
	ct := p.Ciphertext()
	ct[0] ^= 0xff
	if _, err := e2e.Open(p, b.priv, b.pub, a.pub); err != nil {
		t.Fatalf("payload changed through accessor: %v", err)
	}
}

func TestJSONShape(t *testing.T) {
	a, b := newParty(t), newParty(t)
	p := seal(t, a, b, "json")
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["v"] != float64(2) || m["ct"] != p.Encode() {
		t.Fatalf("unexpected JSON %s", raw)
	}
	var back e2e.Payload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(p) {
		t.Fatal("decoded payload differs")
	}
	if !(e2e.Payload{}).IsZero() {
		t.Fatal("zero payload not reported as zero")
	}
}
