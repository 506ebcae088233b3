package utils // package utils provides helpers for signing and checking session tokens

import (
    "crypto/rand"   // secure random number generation
    "encoding/hex"  // hex encoding of random token ids
    "errors"        // sentinel errors for codec failures
    "time"          // expiry arithmetic

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Codec failures. BadSignature means the credential was tampered with
// or signed under a different secret; TokenExpired means the expiry
// baked into the signed payload has passed. The two are reported
// separately because the session row's expiry can be extended after
// minting, in which case the row wins and the embedded claim is only
// an integrity check.
var (
    ErrBadSignature  = errors.New("bad token signature")
    ErrTokenExpired  = errors.New("token structurally expired")
    ErrMissingField  = errors.New("missing username or expiry")
    ErrInvalidExpiry = errors.New("expiry is not a valid instant")
)

// SessionClaims is the immutable payload of a signed session token.
// Once minted these values never change (the session row carries the
// mutable state); DeviceID records the binding at mint time only and
// may be empty when issuance and device registration are split.
type SessionClaims struct {
    Username  string    // sub claim
    DeviceID  string    // dev claim, optional
    ExpiresAt time.Time // exp claim
    IssuedAt  time.Time // iat claim
}

// MintSessionToken builds and signs an HS256 JWT binding a username,
// an optional device id and an absolute expiry. The expiry may lie in
// the past: an already-expired token is legal output and simply never
// verifies against the store. Every mint carries a fresh random jti,
// so two issuances with identical inputs still yield distinct tokens
// and therefore distinct session rows.
func MintSessionToken(secret, username, deviceID string, expiresAt time.Time) (string, error) {
    if username == "" || expiresAt.IsZero() {
        return "", ErrMissingField
    }
    jti, err := randomHex(16)
    if err != nil {
        return "", err
    }
    // MapClaims mirrors how access tokens were shaped before device
    // binding existed: sub for the identity, exp/iat as Unix seconds.
    claims := jwt.MapClaims{
        "sub": username,
        "exp": expiresAt.UTC().Unix(),
        "iat": time.Now().UTC().Unix(),
        "jti": jti,
    }
    if deviceID != "" {
        claims["dev"] = deviceID
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return t.SignedString([]byte(secret))
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}

// VerifySessionToken checks the signature and structure of a token
// and returns its claims. It is side-effect free and consults no
// storage. A structurally expired token still yields its claims next
// to ErrTokenExpired so the caller can let the authoritative session
// row decide; any other failure yields ErrBadSignature.
func VerifySessionToken(secret, token string) (SessionClaims, error) {
    // Claims validation (exp/iat) is done by hand below so that an
    // expired-but-genuine token is distinguishable from a forged one.
    parser := jwt.NewParser(jwt.WithoutClaimsValidation())
    tok, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrBadSignature
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return SessionClaims{}, ErrBadSignature
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return SessionClaims{}, ErrBadSignature
    }

    var c SessionClaims
    if v, ok := mc["sub"].(string); ok {
        c.Username = v
    }
    if v, ok := mc["dev"].(string); ok {
        c.DeviceID = v
    }
    if v, ok := mc["exp"].(float64); ok {
        c.ExpiresAt = time.Unix(int64(v), 0).UTC()
    }
    if v, ok := mc["iat"].(float64); ok {
        c.IssuedAt = time.Unix(int64(v), 0).UTC()
    }
    if c.Username == "" || c.ExpiresAt.IsZero() {
        return SessionClaims{}, ErrBadSignature
    }
    if !c.ExpiresAt.After(time.Now().UTC()) {
        return c, ErrTokenExpired
    }
    return c, nil
}
