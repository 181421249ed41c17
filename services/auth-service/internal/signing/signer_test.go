package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/masterparty/platform/libs/auth"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func claims() auth.Claims {
	now := time.Now()
	return auth.Claims{Sub: "u-1", Roles: []string{auth.RoleClient}, Iat: now.Unix(), Exp: now.Add(time.Minute).Unix()}
}

func TestKeySetRotation(t *testing.T) {
	a, b := newKey(t), newKey(t)
	kidA, kidB := KeyID(&a.PublicKey), KeyID(&b.PublicKey)
	set, err := NewKeySet(map[string]*rsa.PrivateKey{kidA: a, kidB: b}, kidA)
	if err != nil {
		t.Fatalf("new key set: %v", err)
	}

	oldToken, err := set.Sign(claims())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := set.SetActiveKid(kidB); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	newToken, err := set.Sign(claims())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header, _ := auth.ParseHeader(newToken)
	if header.Kid != kidB {
		t.Fatalf("expected kid %s, got %s", kidB, header.Kid)
	}
	for _, token := range []string{oldToken, newToken} {
		if _, err := set.Verify(token); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
	if len(set.JWKS()) != 2 {
		t.Fatalf("expected 2 public keys")
	}
	if err := set.SetActiveKid("nope"); !errors.Is(err, ErrUnknownKid) {
		t.Fatalf("expected ErrUnknownKid, got %v", err)
	}
}

func TestKeySetRejectsForeignKey(t *testing.T) {
	set, err := NewKeySet(map[string]*rsa.PrivateKey{"k1": newKey(t)}, "")
	if err != nil {
		t.Fatalf("new key set: %v", err)
	}
	token, err := auth.SignRS256(claims(), newKey(t), "k1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := set.Verify(token); err == nil {
		t.Fatalf("expected verification failure")
	}
}

func TestParseKeyBundle(t *testing.T) {
	a, b := newKey(t), newKey(t)
	bundle := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(a)}))
	pkcs8, err := x509.MarshalPKCS8PrivateKey(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	bundle += string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))

	keys, err := ParseKeyBundle(bundle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if keys[KeyID(&a.PublicKey)] == nil || keys[KeyID(&b.PublicKey)] == nil {
		t.Fatalf("expected both keys, got %d", len(keys))
	}
	if _, err := ParseKeyBundle("garbage"); err == nil {
		t.Fatalf("expected error for empty bundle")
	}
}

func TestHS256Signer(t *testing.T) {
	s := NewHS256("secret")
	token, err := s.Sign(claims())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := s.Verify(token)
	if err != nil || got.Sub != "u-1" {
		t.Fatalf("verify: %v %+v", err, got)
	}
	if s.JWKS() != nil {
		t.Fatalf("hs256 has no public keys")
	}
	if err := s.SetActiveKid("x"); !errors.Is(err, ErrRotationUnsupported) {
		t.Fatalf("expected ErrRotationUnsupported, got %v", err)
	}
}
