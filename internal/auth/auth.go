// Package auth provides admin API authentication using RSA-PSS signatures.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Header names carried on the WebSocket upgrade request.
const (
	HeaderKey       = "X-Admin-Key"
	HeaderTimestamp = "X-Admin-Timestamp"
	HeaderSignature = "X-Admin-Signature"
)

// Errors
var (
	ErrMissingHeaders   = errors.New("missing authentication headers")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrTimestampSkew    = errors.New("timestamp outside allowed skew")
)

// Credentials holds the key ID and private key for signing requests.
type Credentials struct {
	KeyID      string          // Identifies the operator in logs and the audit trail
	PrivateKey *rsa.PrivateKey // RSA private key for signing
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// LoadPublicKey loads an RSA public key from a PEM file, in PKIX or PKCS#1 form.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA public key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return rsaKey, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	return block, nil
}

// SignRequest generates authentication headers for an admin API request.
// For WebSocket connections, method should be "GET" and path the endpoint path.
func (c *Credentials) SignRequest(method, path string) (http.Header, error) {
	timestampMs := time.Now().UnixMilli()

	signature, err := c.generateSignature(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set(HeaderKey, c.KeyID)
	h.Set(HeaderTimestamp, strconv.FormatInt(timestampMs, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}

// generateSignature creates an RSA-PSS signature for the given request.
func (c *Credentials) generateSignature(timestampMs int64, method, path string) (string, error) {
	hashed := sha256.Sum256(signedMessage(timestampMs, method, path))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// signedMessage returns the bytes covered by a signature: timestamp_ms, then
// method, then path.
func signedMessage(timestampMs int64, method, path string) []byte {
	return []byte(strconv.FormatInt(timestampMs, 10) + method + path)
}

// Verifier checks signed admin requests against a single public key.
type Verifier struct {
	publicKey *rsa.PublicKey
	maxSkew   time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier. Timestamps further than maxSkew from the
// local clock are rejected.
func NewVerifier(publicKey *rsa.PublicKey, maxSkew time.Duration) *Verifier {
	return &Verifier{
		publicKey: publicKey,
		maxSkew:   maxSkew,
		now:       time.Now,
	}
}

// Verify checks the authentication headers of a request and returns the
// caller's key ID.
func (v *Verifier) Verify(method, path string, h http.Header) (string, error) {
	keyID := h.Get(HeaderKey)
	tsRaw := h.Get(HeaderTimestamp)
	sigRaw := h.Get(HeaderSignature)
	if keyID == "" || tsRaw == "" || sigRaw == "" {
		return "", ErrMissingHeaders
	}

	timestampMs, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp %q", ErrSignatureInvalid, tsRaw)
	}

	skew := v.now().Sub(time.UnixMilli(timestampMs))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return "", fmt.Errorf("%w: %s", ErrTimestampSkew, skew)
	}

	signature, err := base64.StdEncoding.DecodeString(sigRaw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	hashed := sha256.Sum256(signedMessage(timestampMs, method, path))
	if err := rsa.VerifyPSS(
		v.publicKey,
		crypto.SHA256,
		hashed[:],
		signature,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	); err != nil {
		return "", ErrSignatureInvalid
	}

	return keyID, nil
}
