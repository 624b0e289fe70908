package cryptography

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	jose "gopkg.in/square/go-jose.v2"
)

const (
	// CoordinateSize is the byte length of a P-256 curve coordinate
	CoordinateSize = 32
)

var (
	ErrNotP256Key = errors.New("key is not an ECDSA P-256 key")
)

type P256PrivateKey struct {
	*ecdsa.PrivateKey
}

func NewP256PrivateKey() (*P256PrivateKey, error) {
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ecdsa key")
	}

	return &P256PrivateKey{pk}, nil
}

// ParseP256JWK decodes a private key exported with MarshalJWK
func ParseP256JWK(d []byte) (*P256PrivateKey, error) {
	jwk := jose.JSONWebKey{}
	if err := jwk.UnmarshalJSON(d); err != nil {
		return nil, errors.Wrap(err, "unmarshalling jwk")
	}

	pk, ok := jwk.Key.(*ecdsa.PrivateKey)
	if !ok || pk.Curve != elliptic.P256() {
		return nil, ErrNotP256Key
	}

	return &P256PrivateKey{pk}, nil
}

// JWK describes the private key as a JSON web key
func (p *P256PrivateKey) JWK() (jose.JSONWebKey, error) {
	jwk := jose.JSONWebKey{
		Key:       p.PrivateKey,
		Algorithm: string(jose.ES256),
		Use:       "sig",
	}

	kid, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return jwk, errors.Wrap(err, "computing key thumbprint")
	}
	jwk.KeyID = base64.RawURLEncoding.EncodeToString(kid)

	return jwk, nil
}

func (p *P256PrivateKey) MarshalJWK() ([]byte, error) {
	jwk, err := p.JWK()
	if err != nil {
		return nil, err
	}

	return jwk.MarshalJSON()
}

func (p *P256PrivateKey) Sign(_ io.Reader, msg []byte, _ crypto.SignerOpts) ([]byte, error) {
	h := sha256.Sum256(msg)
	return ecdsa.SignASN1(rand.Reader, p.PrivateKey, h[:])
}

func (p *P256PrivateKey) Public() crypto.PublicKey {
	return &P256PublicKey{p.PublicKey}
}

type P256PublicKey struct {
	ecdsa.PublicKey
}

// Tokens returns the x and y coordinates as unpadded base64url strings, the
// same encoding a JWK uses for them
func (p *P256PublicKey) Tokens() (string, string) {
	x := make([]byte, CoordinateSize)
	y := make([]byte, CoordinateSize)
	p.X.FillBytes(x)
	p.Y.FillBytes(y)

	return base64.RawURLEncoding.EncodeToString(x), base64.RawURLEncoding.EncodeToString(y)
}

// JWK describes the public key as a JSON web key
func (p *P256PublicKey) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &p.PublicKey,
		Algorithm: string(jose.ES256),
		Use:       "sig",
	}
}

func (p *P256PublicKey) MarshalJSON() ([]byte, error) {
	jwk := p.JWK()
	return json.Marshal(&jwk)
}

func (p *P256PublicKey) Verify(sig, msg []byte) (bool, error) {
	h := sha256.Sum256(msg)
	return ecdsa.VerifyASN1(&p.PublicKey, h[:], sig), nil
}
