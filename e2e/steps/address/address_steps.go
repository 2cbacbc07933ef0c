package address

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	DELETE(path string, body any) error
	ProviderPOST(path string, body any) error
	ProviderDELETE(path string, body any) error
	GetResponseField(field string) (any, error)
	Save(key string, v any)
	Load(key string) (any, bool)
	Expand(s string) string
}

// RegisterSteps registers address registration and revocation steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &addressSteps{tc: tc}

	ctx.Step(`^a resident with a fresh DID$`, steps.freshResident)
	ctx.Step(`^the provider registers PID "([^"]*)" in city "([^"]*)"$`, steps.register)
	ctx.Step(`^the provider registers PID "([^"]*)" for country "([^"]*)"$`, steps.registerForCountry)
	ctx.Step(`^I save the issued credential$`, steps.saveCredential)
	ctx.Step(`^the provider revokes PID "([^"]*)" because "([^"]*)"$`, steps.revoke)
	ctx.Step(`^the provider revokes PID "([^"]*)" moving to "([^"]*)"$`, steps.revokeWithSuccessor)
	ctx.Step(`^an anonymous client revokes PID "([^"]*)"$`, steps.anonymousRevoke)
	ctx.Step(`^I verify the saved credential$`, steps.verifyCredential)
}

type addressSteps struct {
	tc TestContext
}

func (s *addressSteps) freshResident(ctx context.Context) error {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	s.tc.Save("userDid", "did:pid:"+hex.EncodeToString(pub))
	return nil
}

func (s *addressSteps) userDID() (string, error) {
	v, ok := s.tc.Load("userDid")
	if !ok {
		return "", fmt.Errorf("no resident DID; add \"Given a resident with a fresh DID\"")
	}
	return v.(string), nil
}

func (s *addressSteps) register(ctx context.Context, pid, city string) error {
	pid = s.tc.Expand(pid)
	country, _, _ := strings.Cut(pid, "-")
	return s.post(pid, country, city)
}

func (s *addressSteps) registerForCountry(ctx context.Context, pid, country string) error {
	return s.post(s.tc.Expand(pid), country, "Somewhere")
}

func (s *addressSteps) post(pid, country, city string) error {
	did, err := s.userDID()
	if err != nil {
		return err
	}
	return s.tc.ProviderPOST("/addresses", map[string]any{
		"userDid":     did,
		"pid":         pid,
		"countryCode": country,
		"fullAddress": map[string]string{
			"country": country,
			"city":    city,
			"street":  "1-2-3 Hongo",
		},
	})
}

func (s *addressSteps) saveCredential(ctx context.Context) error {
	vc, err := s.tc.GetResponseField("credential")
	if err != nil {
		return err
	}
	s.tc.Save("credential", vc)
	return nil
}

func (s *addressSteps) revoke(ctx context.Context, pid, reason string) error {
	return s.tc.ProviderDELETE("/addresses/"+s.tc.Expand(pid), map[string]string{"reason": reason})
}

func (s *addressSteps) anonymousRevoke(ctx context.Context, pid string) error {
	return s.tc.DELETE("/addresses/"+s.tc.Expand(pid), map[string]string{"reason": "moved"})
}

func (s *addressSteps) revokeWithSuccessor(ctx context.Context, pid, newPID string) error {
	return s.tc.ProviderDELETE("/addresses/"+s.tc.Expand(pid), map[string]string{
		"reason": "moved",
		"newPid": s.tc.Expand(newPID),
	})
}

func (s *addressSteps) verifyCredential(ctx context.Context) error {
	vc, ok := s.tc.Load("credential")
	if !ok {
		return fmt.Errorf("no saved credential")
	}
	return s.tc.POST("/credentials/verify", map[string]any{"credential": vc})
}
