package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type keyServer struct {
	mu    sync.Mutex
	keys  map[string]*rsa.PrivateKey
	down  atomic.Bool
	calls atomic.Int32
}

func (s *keyServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.calls.Add(1)
	if s.down.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out struct {
		Keys []jwk `json:"keys"`
	}
	for kid, key := range s.keys {
		out.Keys = append(out.Keys, jwk{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *keyServer) add(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s.mu.Lock()
	s.keys[kid] = key
	s.mu.Unlock()
	return key
}

func TestVerifierRS256ThroughJWKS(t *testing.T) {
	ks := &keyServer{keys: map[string]*rsa.PrivateKey{}}
	k1 := ks.add(t, "k1")
	srv := httptest.NewServer(ks)
	defer srv.Close()

	v := Verifier{Secret: "secret", JWKS: NewJWKSClient(srv.URL, time.Minute, srv.Client())}
	token, err := SignRS256(testClaims("user-1", RoleClient), k1, "k1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(context.Background(), token)
	if err != nil || claims.Sub != "user-1" {
		t.Fatalf("verify: %v %+v", err, claims)
	}

	// a rotated-in key is picked up without waiting for the ttl
	clock := time.Now().Add(time.Hour)
	v.JWKS.now = func() time.Time { return clock }
	k2 := ks.add(t, "k2")
	token2, _ := SignRS256(testClaims("user-2", RoleClient), k2, "k2")
	if _, err := v.Verify(context.Background(), token2); err != nil {
		t.Fatalf("verify rotated key: %v", err)
	}

	// known keys survive an outage of the auth service
	ks.down.Store(true)
	clock = clock.Add(2 * time.Hour)
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("expected stale key to be served, got %v", err)
	}
}

func TestJWKSUnknownKidIsThrottled(t *testing.T) {
	ks := &keyServer{keys: map[string]*rsa.PrivateKey{}}
	ks.add(t, "k1")
	srv := httptest.NewServer(ks)
	defer srv.Close()

	c := NewJWKSClient(srv.URL, time.Minute, srv.Client())
	if _, err := c.Get(context.Background(), "k1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	}
	if got := ks.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestVerifierRejects(t *testing.T) {
	hs, _ := SignHS256(testClaims("user-1"), "secret")
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	rs, _ := SignRS256(testClaims("user-1"), key, "k1")

	tests := []struct {
		name  string
		v     Verifier
		token string
	}{
		{"garbage", Verifier{Secret: "secret"}, "a.b"},
		{"wrong secret", Verifier{Secret: "other"}, hs},
		{"hs256 disabled", Verifier{}, hs},
		{"rs256 without jwks", Verifier{Secret: "secret"}, rs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.v.Verify(context.Background(), tt.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
	if _, err := (Verifier{Secret: "secret"}).Verify(context.Background(), hs); err != nil {
		t.Fatalf("hs256: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected no token")
	}
	r.Header.Set("Authorization", "Bearer  abc ")
	if tok, ok := BearerToken(r); !ok || tok != "abc" {
		t.Fatalf("unexpected %q %v", tok, ok)
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, ok := BearerToken(r); ok {
		t.Fatalf("basic auth is not a bearer token")
	}
}
