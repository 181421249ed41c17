// Package signing issues and verifies access tokens in HS256 or RS256 mode.
package signing

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/masterparty/platform/libs/auth"
)

var (
	ErrRotationUnsupported = errors.New("key rotation not supported")
	ErrUnknownKid          = errors.New("unknown kid")
)

type Signer interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	// JWKS lists public keys; empty in HS256 mode.
	JWKS() []map[string]any
	ActiveKid() string
	SetActiveKid(kid string) error
}

type hs256 struct {
	secret string
}

func NewHS256(secret string) Signer {
	return hs256{secret: secret}
}

func (s hs256) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s hs256) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (hs256) JWKS() []map[string]any { return nil }

func (hs256) ActiveKid() string { return "" }

func (hs256) SetActiveKid(string) error { return ErrRotationUnsupported }

type rsaKey struct {
	private *rsa.PrivateKey
	jwk     map[string]any
}

// KeySet signs with one active RSA key and verifies against all of them,
// so tokens minted before a rotation stay valid until they expire.
type KeySet struct {
	mu     sync.RWMutex
	active string
	keys   map[string]rsaKey
}

func NewKeySet(keys map[string]*rsa.PrivateKey, activeKid string) (*KeySet, error) {
	s := &KeySet{keys: map[string]rsaKey{}}
	for kid, key := range keys {
		if kid == "" || key == nil {
			continue
		}
		s.keys[kid] = rsaKey{private: key, jwk: publicJWK(&key.PublicKey, kid)}
	}
	if len(s.keys) == 0 {
		return nil, errors.New("no rsa keys provided")
	}
	if activeKid == "" {
		activeKid = s.kids()[0]
	}
	if _, ok := s.keys[activeKid]; !ok {
		return nil, ErrUnknownKid
	}
	s.active = activeKid
	return s, nil
}

// NewRS256 wraps a single PEM key; kid defaults to a fingerprint of the public key.
func NewRS256(pemBytes []byte, kid string) (*KeySet, error) {
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid = KeyID(&key.PublicKey)
	}
	return NewKeySet(map[string]*rsa.PrivateKey{kid: key}, kid)
}

func (s *KeySet) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	kid := s.active
	key := s.keys[kid]
	s.mu.RUnlock()
	return auth.SignRS256(claims, key.private, kid)
}

func (s *KeySet) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	key, ok := s.keys[header.Kid]
	s.mu.RUnlock()
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyRS256(token, &key.private.PublicKey)
}

func (s *KeySet) JWKS() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.keys))
	for _, kid := range s.kids() {
		out = append(out, s.keys[kid].jwk)
	}
	return out
}

func (s *KeySet) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *KeySet) SetActiveKid(kid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[kid]; !ok {
		return ErrUnknownKid
	}
	s.active = kid
	return nil
}

func (s *KeySet) kids() []string {
	out := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		out = append(out, kid)
	}
	sort.Strings(out)
	return out
}

// ParseKeyBundle reads every PEM private key in raw, keyed by KeyID.
func ParseKeyBundle(raw string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	for _, block := range splitPEMBlocks(raw) {
		key, err := ParsePrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		keys[KeyID(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

// ParsePrivateKey accepts PKCS#1 and PKCS#8 encoded RSA keys.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}

func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

func publicJWK(pub *rsa.PublicKey, kid string) map[string]any {
	return map[string]any{
		"kty": "RSA",
		"kid": kid,
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteByte('\n')
		}
		if inBlock && strings.HasPrefix(line, "-----END ") {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
