package realtime

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("realtime: bearer token is required")
	ErrInvalidToken = errors.New("realtime: bearer token is invalid")
	ErrExpiredToken = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// TokenVerifier resolves a bearer credential to the authenticated user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type TokenVerifierFunc func(ctx context.Context, token string) (string, error)

func (fn TokenVerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return fn(ctx, token)
}

// HMACTokenVerifier accepts compact HS256 JWTs carrying a "sub" claim and an
// optional "exp" claim.
type HMACTokenVerifier struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func NewHMACTokenVerifier(secret string) *HMACTokenVerifier {
	return &HMACTokenVerifier{
		Secret: []byte(strings.TrimSpace(secret)),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

type tokenClaims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

func (v *HMACTokenVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	if v == nil || len(v.Secret) == 0 {
		return "", fmt.Errorf("realtime: token signing secret is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("realtime: token subject is required")
	}
	now := v.now()
	claims := tokenClaims{Subject: userID, Issuer: v.Issuer, IssuedAt: now.Unix()}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}

	headerRaw, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", fmt.Errorf("realtime: marshal token header: %w", err)
	}
	claimsRaw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("realtime: marshal token claims: %w", err)
	}
	signed := base64.RawURLEncoding.EncodeToString(headerRaw) + "." + base64.RawURLEncoding.EncodeToString(claimsRaw)
	return signed + "." + v.sign(signed), nil
}

func (v *HMACTokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if v == nil || len(v.Secret) == 0 {
		return "", fmt.Errorf("realtime: token signing secret is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed", ErrInvalidToken)
	}

	expected := v.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return "", fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: header encoding", ErrInvalidToken)
	}
	var header map[string]string
	if err := json.Unmarshal(headerRaw, &header); err != nil || header["alg"] != "HS256" {
		return "", fmt.Errorf("%w: unsupported algorithm", ErrInvalidToken)
	}

	claimsRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: claims encoding", ErrInvalidToken)
	}
	var claims tokenClaims
	if err := json.Unmarshal(claimsRaw, &claims); err != nil {
		return "", fmt.Errorf("%w: claims payload", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: subject is empty", ErrInvalidToken)
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return "", fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if claims.ExpiresAt > 0 && !v.now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return "", ErrExpiredToken
	}
	return strings.TrimSpace(claims.Subject), nil
}

func (v *HMACTokenVerifier) sign(payload string) string {
	mac := hmac.New(sha256.New, v.Secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (v *HMACTokenVerifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// ExtractBearerToken reads the credential from the Authorization header and
// falls back to the token query parameter.
func ExtractBearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
