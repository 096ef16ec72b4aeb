package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"

	minNonceLen = 8
	maxNonceLen = 128
)

type Reason string

const (
	ReasonMalformed     Reason = "malformed"
	ReasonInvalidKey    Reason = "invalid_key"
	ReasonExpired       Reason = "expired"
	ReasonBadSignature  Reason = "bad_signature"
	ReasonReplayedNonce Reason = "replayed_nonce"
)

// Error is a rejected request. Only Reason is ever shown to the caller.
type Error struct {
	Reason Reason
}

func (e *Error) Error() string {
	return "signature rejected: " + string(e.Reason)
}

var (
	ErrMalformed     = &Error{Reason: ReasonMalformed}
	ErrInvalidKey    = &Error{Reason: ReasonInvalidKey}
	ErrExpired       = &Error{Reason: ReasonExpired}
	ErrBadSignature  = &Error{Reason: ReasonBadSignature}
	ErrReplayedNonce = &Error{Reason: ReasonReplayedNonce}

	ErrEmptySecret = errors.New("signing secret cannot be empty")
)

// Request carries the parts of an HTTP request that are authenticated.
type Request struct {
	APIKey    string
	Timestamp string
	Nonce     string
	Method    string
	Path      string
	Body      []byte
	Signature string
}

type Config struct {
	Secret string
	// AgentKeys maps API key to agent id.
	AgentKeys map[string]string
	Window    time.Duration
	NonceTTL  time.Duration
	Now       func() time.Time
}

type Verifier struct {
	secret   []byte
	keys     map[string]string
	window   time.Duration
	nonceTTL time.Duration
	nonces   NonceStore
	now      func() time.Time
}

func NewVerifier(cfg Config, nonces NonceStore) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	if len(cfg.AgentKeys) == 0 {
		return nil, errors.New("at least one agent key is required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.NonceTTL < cfg.Window {
		cfg.NonceTTL = cfg.Window
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Verifier{
		secret:   []byte(cfg.Secret),
		keys:     cfg.AgentKeys,
		window:   cfg.Window,
		nonceTTL: cfg.NonceTTL,
		nonces:   nonces,
		now:      cfg.Now,
	}, nil
}

// Verify authenticates req and returns the calling agent's id. Checks run
// cheapest first: key, freshness, signature, and only then the nonce, so
// unsigned traffic never reaches the nonce store. A non-*Error return means
// the nonce store itself failed.
func (v *Verifier) Verify(ctx context.Context, req Request) (string, error) {
	if req.APIKey == "" || req.Timestamp == "" || req.Nonce == "" || req.Signature == "" {
		return "", ErrMalformed
	}
	if len(req.Nonce) < minNonceLen || len(req.Nonce) > maxNonceLen {
		return "", ErrMalformed
	}

	agentID, ok := v.lookupAgent(req.APIKey)
	if !ok {
		return "", ErrInvalidKey
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return "", ErrMalformed
	}
	now := v.now()
	signedAt := time.UnixMilli(ts)
	skew := now.Sub(signedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return "", ErrExpired
	}

	body, err := CanonicalBody(req.Body)
	if err != nil {
		return "", ErrMalformed
	}

	got, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		return "", ErrBadSignature
	}
	want := mac(v.secret, SigningString(req.Timestamp, req.Method, req.Path, body))
	if !hmac.Equal(got, want) {
		return "", ErrBadSignature
	}

	fresh, err := v.nonces.Claim(ctx, agentID+":"+req.Nonce, v.nonceLifetime(signedAt, now))
	if err != nil {
		return "", fmt.Errorf("nonce store: %w", err)
	}
	if !fresh {
		return "", ErrReplayedNonce
	}

	return agentID, nil
}

// nonceLifetime keeps a nonce at least until its timestamp falls outside the
// window. A timestamp ahead of our clock stays fresh for longer than the
// window counted from now.
func (v *Verifier) nonceLifetime(signedAt, now time.Time) time.Duration {
	return max(signedAt.Add(v.window).Sub(now), v.nonceTTL)
}

// lookupAgent compares against every configured key so the time taken does
// not depend on which key matched.
func (v *Verifier) lookupAgent(apiKey string) (string, bool) {
	var agentID string
	found := false
	for key, id := range v.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			agentID = id
			found = true
		}
	}
	return agentID, found
}

func SigningString(timestamp, method, path, canonicalBody string) string {
	return timestamp + "." + strings.ToUpper(method) + "." + path + "." + canonicalBody
}

// Sign returns the hex signature for a request. body is the raw JSON body.
func Sign(secret, timestamp, method, path string, body []byte) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	canonical, err := CanonicalBody(body)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mac([]byte(secret), SigningString(timestamp, method, path, canonical))), nil
}

func mac(secret []byte, msg string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(msg))
	return h.Sum(nil)
}
