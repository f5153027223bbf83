// Package workerauth signs and checks off-chain worker submissions.
//
// The worker signs a blake3 digest of the envelope it verified as an EdDSA
// JWT. submit_verification_status only accepts envelopes whose signature
// checks out against a registered worker key.
package workerauth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"

	"anagolay/internal/verification/models"
)

const (
	issuer        = "offchain-worker"
	keyInfo       = "anagolay/offchain-worker/ed25519"
	signatureTTL  = 10 * time.Minute
	digestClaim   = "digest"
	workerIDClaim = "wid"
)

// KeyFromSeed derives the worker's ed25519 key from an operator secret. An
// empty seed yields a fresh random key.
func KeyFromSeed(seed string) (ed25519.PrivateKey, error) {
	if seed == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate worker key: %w", err)
		}
		return priv, nil
	}
	r := hkdf.New(sha256.New, []byte(seed), nil, []byte(keyInfo))
	raw := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("derive worker key: %w", err)
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// Digest is the hex blake3-256 of the envelope's JSON encoding.
func Digest(data models.IndexingData) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode indexing data: %w", err)
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// WorkerID is the hex public key identifying a worker.
func WorkerID(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// Signer signs envelopes with the local worker key.
type Signer struct {
	key ed25519.PrivateKey
	now func() time.Time
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key, now: time.Now}
}

// PublicKey returns the key the Authority must trust.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *Signer) Sign(data models.IndexingData) (string, error) {
	digest, err := Digest(data)
	if err != nil {
		return "", err
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iss":         issuer,
		"iat":         now.Unix(),
		"exp":         now.Add(signatureTTL).Unix(),
		digestClaim:   digest,
		workerIDClaim: WorkerID(s.PublicKey()),
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign indexing data: %w", err)
	}
	return signed, nil
}

// Authority holds the worker keys whose submissions are accepted.
type Authority struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func NewAuthority(keys ...ed25519.PublicKey) *Authority {
	a := &Authority{keys: make(map[string]ed25519.PublicKey)}
	for _, k := range keys {
		a.Trust(k)
	}
	return a
}

// Trust registers a worker key.
func (a *Authority) Trust(key ed25519.PublicKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[WorkerID(key)] = key
}

// Verify checks that signature was produced by a trusted worker over data.
// Any failure is models.ErrInvalidWorkerSignature.
func (a *Authority) Verify(data models.IndexingData, signature string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		wid, _ := claims[workerIDClaim].(string)
		a.mu.RLock()
		key, ok := a.keys[wid]
		a.mu.RUnlock()
		if !ok {
			return nil, errors.New("unknown worker")
		}
		return key, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidWorkerSignature, err)
	}

	want, err := Digest(data)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidWorkerSignature, err)
	}
	if got, _ := claims[digestClaim].(string); got != want {
		return fmt.Errorf("%w: digest mismatch", models.ErrInvalidWorkerSignature)
	}
	return nil
}
