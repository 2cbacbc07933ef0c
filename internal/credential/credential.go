// Package credential issues and verifies address credentials: VCs binding a
// subject DID to a PID, signed by an issuer DID. Credentials never carry the
// raw address.
package credential

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pidgate/internal/did"
	dErrors "pidgate/pkg/domain-errors"
)

const (
	ProofType      = "JsonWebSignature2020"
	CredentialType = "AddressCredential"
)

var contexts = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://pidgate.dev/contexts/address/v1",
}

// Claim is what the issuer attests about the subject's address.
type Claim struct {
	AddressPID  string `json:"addressPID"`
	CountryCode string `json:"countryCode"`
	Admin1Code  string `json:"admin1Code"`
}

// Proof is the issuer's signature. Signature is a compact EdDSA JWS whose
// payload commits to the digest of the unsigned credential.
type Proof struct {
	Type               string    `json:"type"`
	VerificationMethod string    `json:"verificationMethod"`
	Signature          string    `json:"signature"`
	Created            time.Time `json:"created"`
}

// VerifiableCredential is an address credential. Proof is nil until signed.
type VerifiableCredential struct {
	Context        []string  `json:"@context"`
	ID             string    `json:"id"`
	Type           []string  `json:"type"`
	Issuer         string    `json:"issuer"`
	Subject        string    `json:"subject"`
	Claim          Claim     `json:"claim"`
	IssuanceDate   time.Time `json:"issuanceDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	Proof          *Proof    `json:"proof,omitempty"`
}

// Issue builds an unsigned credential.
func Issue(subjectDID, issuerDID, pid, countryCode, admin1Code string, expiration time.Time) (*VerifiableCredential, error) {
	switch {
	case !did.Valid(subjectDID):
		return nil, dErrors.New(dErrors.CodeValidation, "subject must be a valid DID")
	case !did.Valid(issuerDID):
		return nil, dErrors.New(dErrors.CodeValidation, "issuer must be a valid DID")
	case pid == "":
		return nil, dErrors.New(dErrors.CodeValidation, "pid is required")
	case countryCode == "":
		return nil, dErrors.New(dErrors.CodeValidation, "country code is required")
	case expiration.IsZero():
		return nil, dErrors.New(dErrors.CodeValidation, "expiration is required")
	}
	return &VerifiableCredential{
		Context: contexts,
		ID:      "urn:uuid:" + uuid.NewString(),
		Type:    []string{"VerifiableCredential", CredentialType},
		Issuer:  issuerDID,
		Subject: subjectDID,
		Claim: Claim{
			AddressPID:  pid,
			CountryCode: countryCode,
			Admin1Code:  admin1Code,
		},
		IssuanceDate:   time.Now().UTC().Truncate(time.Second),
		ExpirationDate: expiration.UTC(),
	}, nil
}

// signedClaims is the JWS payload.
type signedClaims struct {
	Digest string `json:"vc_digest"`
	jwt.RegisteredClaims
}

// Digest hashes the credential without its proof.
func Digest(vc *VerifiableCredential) (string, error) {
	unsigned := *vc
	unsigned.Proof = nil
	raw, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Sign returns a copy of vc carrying the issuer's proof.
func Sign(vc *VerifiableCredential, issuerKey ed25519.PrivateKey, verificationMethodID string) (*VerifiableCredential, error) {
	if vc == nil {
		return nil, errors.New("credential is nil")
	}
	digest, err := Digest(vc)
	if err != nil {
		return nil, err
	}
	created := time.Now().UTC().Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, signedClaims{
		Digest: digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   vc.Issuer,
			Subject:  vc.Subject,
			ID:       vc.ID,
			IssuedAt: jwt.NewNumericDate(created),
		},
	})
	token.Header["kid"] = verificationMethodID
	sig, err := token.SignedString(issuerKey)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	signed := *vc
	signed.Proof = &Proof{
		Type:               ProofType,
		VerificationMethod: verificationMethodID,
		Signature:          sig,
		Created:            created,
	}
	return &signed, nil
}

// checkSignature verifies the proof JWS against issuerKey and the current
// credential contents.
func checkSignature(vc *VerifiableCredential, issuerKey ed25519.PublicKey) error {
	if vc.Proof == nil || vc.Proof.Signature == "" {
		return errors.New("credential is unsigned")
	}
	claims := &signedClaims{}
	token, err := jwt.ParseWithClaims(vc.Proof.Signature, claims,
		func(*jwt.Token) (any, error) { return issuerKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return fmt.Errorf("verify credential jws: %w", err)
	}
	if kid, _ := token.Header["kid"].(string); kid != vc.Proof.VerificationMethod {
		return errors.New("jws key id does not match verification method")
	}
	digest, err := Digest(vc)
	if err != nil {
		return err
	}
	if claims.Digest != digest || claims.Issuer != vc.Issuer || claims.Subject != vc.Subject {
		return errors.New("credential contents do not match signature")
	}
	return nil
}
