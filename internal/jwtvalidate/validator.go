// Package jwtvalidate verifies bearer tokens issued by providers that
// publish signing keys (spec §4.3), using github.com/golang-jwt/jwt/v5.
package jwtvalidate

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rhavekost/dicomweb-oauth-broker/pkg/logging"
)

// defaultAlgorithms is applied when a ServerConfig omits JWTAlgorithms.
// Per the Open Question in spec §9, HS256 is not in the default set and
// "none" is refused unconditionally regardless of configuration.
var defaultAlgorithms = []string{"RS256", "ES256"}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Reason string
}

// Validator checks signature and claims for one server's configured
// public key, audience, issuer, and algorithm allowlist.
type Validator struct {
	key        interface{} // *rsa.PublicKey or *ecdsa.PublicKey, nil when disabled
	algorithms []string
	audience   string
	issuer     string
}

// New constructs a Validator from a server's JWT settings. When publicKeyPEM
// is empty, validation is disabled: Validate always returns Valid, and the
// caller MUST log a startup WARN (spec §4.3), which this constructor does
// on the caller's behalf via the server subsystem tag.
func New(subsystem, publicKeyPEM, audience, issuer string, algorithms []string) (*Validator, error) {
	algs := algorithms
	if len(algs) == 0 {
		algs = defaultAlgorithms
	}
	for _, a := range algs {
		if strings.EqualFold(a, "none") {
			return nil, fmt.Errorf("JWT algorithm \"none\" is refused unconditionally")
		}
	}

	v := &Validator{algorithms: algs, audience: audience, issuer: issuer}

	if publicKeyPEM == "" {
		logging.Warn(subsystem, "JWT validation is disabled: no public key configured, tokens pass through unchecked")
		return v, nil
	}

	key, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing JWT public key: %w", err)
	}
	v.key = key
	return v, nil
}

func parsePublicKey(pemStr string) (interface{}, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		switch k := key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported public key type %T", k)
		}
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		switch k := cert.PublicKey.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported certificate public key type %T", k)
		}
	}
	return nil, fmt.Errorf("PEM block is neither a public key nor a certificate")
}

// Validate verifies tokenString's signature and standard claims. When the
// Validator was constructed without a public key, it always returns Valid
// (spec §4.3's explicit pass-through mode).
func (v *Validator) Validate(tokenString string) Result {
	if v.key == nil {
		return Result{Valid: true}
	}

	var parserOpts []jwt.ParserOption
	parserOpts = append(parserOpts, jwt.WithValidMethods(v.algorithms))
	parserOpts = append(parserOpts, jwt.WithExpirationRequired())
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, parserOpts...)
	if err != nil {
		return Result{Valid: false, Reason: classifyError(err)}
	}
	return Result{Valid: true}
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case strings.Contains(err.Error(), "token is expired"):
		return "expired"
	case strings.Contains(err.Error(), "audience"):
		return "audience_mismatch"
	case strings.Contains(err.Error(), "issuer"):
		return "issuer_mismatch"
	case strings.Contains(err.Error(), "signature is invalid"):
		return "invalid_signature"
	default:
		return "invalid_token"
	}
}
