package github

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"openfeedback/internal/platform/config"
)

// GitHub rejects app JWTs that live longer than ten minutes.
const appTokenLifetime = 9 * time.Minute

// appTokenSource mints RS256 JWTs that authenticate as the GitHub App itself.
type appTokenSource struct {
	appID int64
	key   *rsa.PrivateKey
	now   func() time.Time
}

func (s *appTokenSource) Token() (*oauth2.Token, error) {
	now := s.now()
	expiresAt := now.Add(appTokenLifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer: strconv.FormatInt(s.appID, 10),
		// backdated for clock drift
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign app token: %w", err)
	}

	return &oauth2.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiresAt.Add(-time.Minute),
	}, nil
}

// NewAppTokenSource returns a cached token source for the app identified by
// appID and its PEM encoded RSA key.
func NewAppTokenSource(appID int64, privateKey []byte) (oauth2.TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return oauth2.ReuseTokenSource(nil, &appTokenSource{appID: appID, key: key, now: time.Now}), nil
}

// LoadPrivateKey returns the inline PEM if set, otherwise the key file.
func LoadPrivateKey(cfg config.GitHubConfig) ([]byte, error) {
	if cfg.PrivateKeyPEM != "" {
		return []byte(cfg.PrivateKeyPEM), nil
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("github private key is not configured")
	}
	data, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read github private key: %w", err)
	}
	return data, nil
}
