// Package installstate signs the state parameter carried through the GitHub
// App installation redirect.
package installstate

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	DefaultWindow = 15 * time.Minute

	keyInfo = "openfeedback/github-install-state"
)

var (
	ErrInvalidState = errors.New("invalid install state")
	ErrExpiredState = fmt.Errorf("%w: expired", ErrInvalidState)
)

var encoding = base64.RawURLEncoding.Strict()

// Payload is the signed content of a state token.
type Payload struct {
	TeamID   *string `json:"teamId,omitempty"`
	ReturnTo string  `json:"returnTo"`
	Nonce    string  `json:"nonce"`
	TS       int64   `json:"ts"`
}

type Signer struct {
	key    []byte
	window time.Duration
	now    func() time.Time
}

// NewSigner derives the MAC key from secret. A non-positive window falls back
// to DefaultWindow.
func NewSigner(secret string, window time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("install state secret is required")
	}
	if window <= 0 {
		window = DefaultWindow
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive state key: %w", err)
	}

	return &Signer{key: key, window: window, now: time.Now}, nil
}

func (s *Signer) NewPayload(teamID *string, returnTo string) Payload {
	return Payload{
		TeamID:   teamID,
		ReturnTo: returnTo,
		Nonce:    uuid.NewString(),
		TS:       s.now().Unix(),
	}
}

// Sign returns base64url(json(p)) + "." + base64url(hmac).
func (s *Signer) Sign(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}

	body := encoding.EncodeToString(data)
	return body + "." + encoding.EncodeToString(s.mac(body)), nil
}

// Verify checks the signature and freshness of token. Every failure wraps
// ErrInvalidState; stale or future-dated tokens return ErrExpiredState.
func (s *Signer) Verify(token string) (Payload, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || strings.Contains(sig, ".") {
		return Payload{}, fmt.Errorf("%w: malformed token", ErrInvalidState)
	}

	gotMAC, err := encoding.DecodeString(sig)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: malformed signature", ErrInvalidState)
	}
	if !hmac.Equal(gotMAC, s.mac(body)) {
		return Payload{}, fmt.Errorf("%w: signature mismatch", ErrInvalidState)
	}

	data, err := encoding.DecodeString(body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: malformed payload", ErrInvalidState)
	}

	var p Payload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil || dec.More() {
		return Payload{}, fmt.Errorf("%w: malformed payload", ErrInvalidState)
	}
	if p.Nonce == "" || p.TS == 0 {
		return Payload{}, fmt.Errorf("%w: incomplete payload", ErrInvalidState)
	}

	age := s.now().Sub(time.Unix(p.TS, 0))
	if age > s.window || age < -s.window {
		return Payload{}, ErrExpiredState
	}

	return p, nil
}

func (s *Signer) mac(body string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(body))
	return h.Sum(nil)
}
