package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// OIDCVerifier checks RS256 access tokens against the keys an OpenID issuer
// publishes. The JWKS URL is discovered on first use; keyfunc then keeps the
// key set fresh in the background until ctx ends.
type OIDCVerifier struct {
	ctx        context.Context
	issuer     string
	audience   string
	httpClient *http.Client

	mu   sync.Mutex
	keys keyfunc.Keyfunc
}

func NewOIDCVerifier(ctx context.Context, issuer, audience string, httpClient *http.Client) *OIDCVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCVerifier{
		ctx:        ctx,
		issuer:     strings.TrimRight(issuer, "/"),
		audience:   audience,
		httpClient: httpClient,
	}
}

// Verify validates signature, issuer, audience and expiry, returning the claims.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*TokenClaims, error) {
	keys, err := v.keyfunc(ctx)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := &TokenClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, keys.Keyfunc, opts...); err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (v *OIDCVerifier) keyfunc(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil {
		return v.keys, nil
	}
	jwksURI, err := v.discover(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := keyfunc.NewDefaultCtx(v.ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("auth: load jwks: %w", err)
	}
	v.keys = keys
	return keys, nil
}

func (v *OIDCVerifier) discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: openid discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("auth: openid discovery: status %d", resp.StatusCode)
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("auth: openid discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("auth: openid discovery: missing jwks_uri")
	}
	return doc.JWKSURI, nil
}
