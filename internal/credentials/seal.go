package credentials

import (
	"errors"

	"github.com/firdasafridi/gocrypt"
)

// Sealer encrypts the session token before it reaches the store.
type Sealer struct {
	gc fieldCipher
}

// fieldCipher is the part of gocrypt used here: it rewrites the tagged
// string fields of a struct in place.
type fieldCipher interface {
	Encrypt(structVal interface{}) error
	Decrypt(structVal interface{}) error
}

type sealedToken struct {
	Value string `gocrypt:"aes"`
}

// NewSealer builds an AES sealer from a hex-encoded secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("empty token secret")
	}
	aesOpt, err := gocrypt.NewAESOpt(secret)
	if err != nil {
		return nil, err
	}
	return &Sealer{gc: gocrypt.New(&gocrypt.Option{AESOpt: aesOpt})}, nil
}

// Seal encrypts token.
func (s *Sealer) Seal(token string) (string, error) {
	v := sealedToken{Value: token}
	if err := s.gc.Encrypt(&v); err != nil {
		return "", err
	}
	return v.Value, nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	v := sealedToken{Value: sealed}
	if err := s.gc.Decrypt(&v); err != nil {
		return "", err
	}
	return v.Value, nil
}
