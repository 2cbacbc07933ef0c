package proof

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	Save(key string, v any)
	Load(key string) (any, bool)
	Expand(s string) string
}

// RegisterSteps registers proof generation and verification steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &proofSteps{tc: tc}

	ctx.Step(`^I request a structure proof for PID "([^"]*)"$`, steps.structure)
	ctx.Step(`^I request a membership proof for PID "([^"]*)"$`, steps.membership)
	ctx.Step(`^I request a membership proof for PID "([^"]*)" within "([^"]*)"$`, steps.membershipInSet)
	ctx.Step(`^I request a locker proof for "([^"]*)" at facility "([^"]*)" among "([^"]*)"$`, steps.locker)
	ctx.Step(`^I request a selective reveal of "([^"]*)" for city "([^"]*)"$`, steps.selectiveReveal)
	ctx.Step(`^I save the proof$`, steps.saveProof)
	ctx.Step(`^I tamper with the saved proof signal "([^"]*)"$`, steps.tamper)
	ctx.Step(`^I verify the saved proof$`, steps.verify)
	ctx.Step(`^I verify the saved proof against set "([^"]*)"$`, steps.verifyAgainstSet)
}

type proofSteps struct {
	tc TestContext
}

func (s *proofSteps) structure(ctx context.Context, pid string) error {
	return s.tc.POST("/proofs/structure", map[string]string{"pid": s.tc.Expand(pid)})
}

func (s *proofSteps) membership(ctx context.Context, pid string) error {
	return s.tc.POST("/proofs/membership", map[string]string{"pid": s.tc.Expand(pid)})
}

func (s *proofSteps) membershipInSet(ctx context.Context, pid, set string) error {
	return s.tc.POST("/proofs/membership", map[string]any{
		"pid":         s.tc.Expand(pid),
		"validPidSet": strings.Split(s.tc.Expand(set), ","),
	})
}

func (s *proofSteps) locker(ctx context.Context, locker, facility, available string) error {
	return s.tc.POST("/proofs/locker", map[string]any{
		"lockerId":         locker,
		"facilityId":       facility,
		"availableLockers": strings.Split(available, ","),
	})
}

func (s *proofSteps) selectiveReveal(ctx context.Context, fields, city string) error {
	return s.tc.POST("/proofs/selective-reveal", map[string]any{
		"fullAddress": map[string]string{
			"country":     "JP",
			"postal_code": "113-0033",
			"city":        city,
			"street":      "1-2-3 Hongo",
		},
		"revealFields": strings.Split(fields, ","),
	})
}

func (s *proofSteps) saveProof(ctx context.Context) error {
	envelope := map[string]any{}
	for _, field := range []string{"proofType", "proof", "publicSignals"} {
		v, err := s.tc.GetResponseField(field)
		if err != nil {
			return err
		}
		envelope[field] = v
	}
	s.tc.Save("proof", envelope)
	return nil
}

func (s *proofSteps) saved() (map[string]any, error) {
	v, ok := s.tc.Load("proof")
	if !ok {
		return nil, fmt.Errorf("no saved proof")
	}
	return v.(map[string]any), nil
}

func (s *proofSteps) tamper(ctx context.Context, signal string) error {
	envelope, err := s.saved()
	if err != nil {
		return err
	}
	signals, ok := envelope["publicSignals"].(map[string]any)
	if !ok {
		return fmt.Errorf("saved proof has no public signals")
	}
	signals[signal] = "tampered"
	return nil
}

func (s *proofSteps) verify(ctx context.Context) error {
	envelope, err := s.saved()
	if err != nil {
		return err
	}
	return s.tc.POST("/proofs/verify", envelope)
}

func (s *proofSteps) verifyAgainstSet(ctx context.Context, set string) error {
	envelope, err := s.saved()
	if err != nil {
		return err
	}
	return s.tc.POST("/proofs/verify", map[string]any{
		"proofType":   envelope["proofType"],
		"proof":       envelope["proof"],
		"validPidSet": strings.Split(s.tc.Expand(set), ","),
	})
}
