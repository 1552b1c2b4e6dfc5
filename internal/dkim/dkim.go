// Package dkim signs rendered messages with a DKIM-Signature header
// before SMTP submission.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// signedHeaders are the headers covered by the signature.
var signedHeaders = []string{
	"From", "To", "Subject", "Date",
	"Message-ID", "MIME-Version", "Content-Type",
}

// Signer signs messages for a fixed domain and selector.
type Signer struct {
	domain   string
	selector string
	key      crypto.Signer
}

// NewSigner loads a PEM-encoded RSA private key from keyFile and returns
// a Signer for the given domain and selector. Both PKCS#8 and PKCS#1 key
// encodings are accepted.
func NewSigner(domain, selector, keyFile string) (*Signer, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM key %s: %w", keyFile, err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", keyFile)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Fall back to PKCS1 format
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DKIM private key: %w", err)
		}
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("DKIM key does not implement crypto.Signer")
	}

	return NewSignerFromKey(domain, selector, signer), nil
}

// NewSignerFromKey returns a Signer using an already-loaded private key.
func NewSignerFromKey(domain, selector string, key crypto.Signer) *Signer {
	return &Signer{
		domain:   domain,
		selector: selector,
		key:      key,
	}
}

// Sign prepends a DKIM-Signature header to the rendered message using
// relaxed/relaxed canonicalization.
func (s *Signer) Sign(raw []byte) ([]byte, error) {
	opts := &msgauthdkim.SignOptions{
		Domain:     s.domain,
		Selector:   s.selector,
		Signer:     s.key,
		HeaderKeys: signedHeaders,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(raw), opts); err != nil {
		return nil, fmt.Errorf("DKIM signing failed: %w", err)
	}

	return signed.Bytes(), nil
}
