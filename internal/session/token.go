// internal/session/token.go
//
// Adept Users – form-session handles.
//
// Context
//   Each open form is addressed by an opaque handle handed to the browser.
//   Handles are stateless signed tokens:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes, unique per form.
//   •  unixMicro – issue time, 8 bytes, big-endian.
//   •  HMAC – keyed with the configured session secret.
//
//   The Store rejects forged or expired handles before touching its map, so
//   guessing keys costs a signature check rather than a lookup.
//
//------------------------------------------------------------------------------

package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const (
	nonceBytes = 16
	tokenBytes = nonceBytes + 8 + sha256.Size // nonce + ts + sig
	minSecret  = 32
)

// ErrWeakSecret is returned for secrets shorter than 32 bytes.
var ErrWeakSecret = errors.New("session: secret must be at least 32 bytes")

// Signer issues and verifies handles.
type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer.  A nil secret generates a random one, which
// invalidates every handle on restart.  maxAge <= 0 disables the age check.
func NewSigner(secret []byte, maxAge time.Duration) (*Signer, error) {
	if secret == nil {
		secret = make([]byte, minSecret)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	if len(secret) < minSecret {
		return nil, ErrWeakSecret
	}
	return &Signer{secret: secret, maxAge: maxAge, now: time.Now}, nil
}

// Issue creates a fresh handle.
func (s *Signer) Issue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf[:nonceBytes]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[nonceBytes:nonceBytes+8], uint64(s.now().UnixMicro()))
	copy(buf[nonceBytes+8:], s.sign(buf[:nonceBytes+8]))
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok carries a valid signature and is not older
// than maxAge.
func (s *Signer) Verify(tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}

	if s.maxAge > 0 {
		issued := time.UnixMicro(int64(binary.BigEndian.Uint64(raw[nonceBytes : nonceBytes+8])))
		now := s.now()
		if now.Sub(issued) > s.maxAge || issued.Sub(now) > time.Minute {
			return false
		}
	}
	return hmac.Equal(raw[nonceBytes+8:], s.sign(raw[:nonceBytes+8]))
}

func (s *Signer) sign(msg []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(msg)
	return mac.Sum(nil)
}
