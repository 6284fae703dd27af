package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SignatureTypeHMACSHA256 = "hmac_sha256"
	SignatureTypeHMACSHA1   = "hmac_sha1"
	SignatureTypeJWT        = "jwt"
)

var (
	ErrBadSignature      = errors.New("webhook: signature mismatch")
	ErrUnsupportedType   = errors.New("webhook: unsupported signature type")
	ErrTimestampInvalid  = errors.New("webhook: invalid timestamp")
	ErrTimestampInFuture = errors.New("webhook: timestamp is in the future")
	ErrTimestampTooOld   = errors.New("webhook: timestamp is too old")
	ErrTokenExpired      = errors.New("webhook: signed token has expired")
	ErrTokenTooOld       = errors.New("webhook: signed token is too old")
	ErrTokenInvalid      = errors.New("webhook: signed token verification failed")
	ErrAlgorithmMismatch = errors.New("webhook: signature algorithm mismatch")
)

// Claims is what a successful verification yields. Token carries the JWT
// payload when the signed-token form was used.
type Claims struct {
	SignatureType string
	Token         jwt.MapClaims
}

// Verifier authenticates inbound provider webhooks before they reach the
// reconciler.
type Verifier struct {
	Secret string
	// MaxAge bounds both the timestamp header and the signed-token age.
	MaxAge time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewVerifier(secret string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Verifier{Secret: secret, MaxAge: maxAge, Now: time.Now}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify checks the timestamp header (when present) and the signature.
// Any error means the request must be rejected before touching state.
func (v *Verifier) Verify(body []byte, signature, sigType, timestamp string) (Claims, error) {
	if timestamp != "" {
		if err := v.verifyTimestamp(timestamp); err != nil {
			return Claims{}, err
		}
	}

	switch {
	case strings.HasPrefix(sigType, "hmac_"):
		algo := strings.TrimPrefix(sigType, "hmac_")
		if err := v.verifyHMAC(body, signature, algo); err != nil {
			return Claims{}, err
		}
		return Claims{SignatureType: sigType}, nil
	case sigType == SignatureTypeJWT:
		claims, err := v.verifyToken(signature)
		if err != nil {
			return Claims{}, err
		}
		return Claims{SignatureType: sigType, Token: claims}, nil
	default:
		return Claims{}, fmt.Errorf("%w: %s", ErrUnsupportedType, sigType)
	}
}

// verifyHMAC compares the header value against hex(HMAC(secret, body)) in
// constant time. A "algo=" prefix, if present, must name the declared
// algorithm.
func (v *Verifier) verifyHMAC(body []byte, signature, algo string) error {
	sig := signature
	if prefix, rest, ok := strings.Cut(signature, "="); ok {
		if prefix != algo {
			return fmt.Errorf("%w: got %s, want %s", ErrAlgorithmMismatch, prefix, algo)
		}
		sig = rest
	}

	var newHash func() hash.Hash
	switch algo {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		newHash = sha1.New
	default:
		return fmt.Errorf("%w: hmac_%s", ErrUnsupportedType, algo)
	}

	mac := hmac.New(newHash, []byte(v.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}

// verifyToken validates the signed-token form: the signature must check
// out and the token must be neither expired nor older than MaxAge.
func (v *Verifier) verifyToken(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(v.Secret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if exp != nil {
		now := v.now()
		if now.After(exp.Time) {
			return nil, ErrTokenExpired
		}
		if iat, _ := claims.GetIssuedAt(); iat != nil && now.Sub(iat.Time) > v.MaxAge {
			return nil, ErrTokenTooOld
		}
	}

	return claims, nil
}

// verifyTimestamp rejects replayed deliveries: the header must not be in
// the future nor older than MaxAge. Unix seconds and RFC3339 accepted.
func (v *Verifier) verifyTimestamp(ts string) error {
	var at time.Time
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
		at = time.Unix(secs, 0)
	} else if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
		at = parsed
	} else {
		return ErrTimestampInvalid
	}

	age := v.now().Sub(at)
	if age < 0 {
		return ErrTimestampInFuture
	}
	if age > v.MaxAge {
		return ErrTimestampTooOld
	}
	return nil
}
