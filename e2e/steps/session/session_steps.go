package session

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	DELETE(path string, body any) error
	GetResponseField(field string) (any, error)
	Save(key string, v any)
	Load(key string) (any, bool)
}

// RegisterSteps registers login session steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &sessionSteps{tc: tc}

	ctx.Step(`^a verifier opens a login session$`, steps.open)
	ctx.Step(`^the wallet scans the session$`, steps.scan)
	ctx.Step(`^the wallet scans the session with challenge "([^"]*)"$`, steps.scanWithChallenge)
	ctx.Step(`^the wallet approves the session$`, steps.approve)
	ctx.Step(`^the wallet denies the session$`, steps.deny)
	ctx.Step(`^the verifier polls the session$`, steps.poll)
	ctx.Step(`^the verifier deletes the session$`, steps.remove)
}

type sessionSteps struct {
	tc TestContext
}

func (s *sessionSteps) open(ctx context.Context) error {
	if err := s.tc.POST("/sessions", nil); err != nil {
		return err
	}
	for _, field := range []string{"id", "challenge"} {
		v, err := s.tc.GetResponseField(field)
		if err != nil {
			return err
		}
		s.tc.Save("session."+field, v)
	}
	return nil
}

func (s *sessionSteps) load(key string) (string, error) {
	v, ok := s.tc.Load(key)
	if !ok {
		return "", fmt.Errorf("%s was not saved by an earlier step", key)
	}
	return v.(string), nil
}

func (s *sessionSteps) path(suffix string) (string, error) {
	id, err := s.load("session.id")
	if err != nil {
		return "", err
	}
	return "/sessions/" + id + suffix, nil
}

func (s *sessionSteps) scan(ctx context.Context) error {
	challenge, err := s.load("session.challenge")
	if err != nil {
		return err
	}
	return s.scanWithChallenge(ctx, challenge)
}

func (s *sessionSteps) scanWithChallenge(ctx context.Context, challenge string) error {
	path, err := s.path("/scan")
	if err != nil {
		return err
	}
	subject, err := s.load("userDid")
	if err != nil {
		return err
	}
	return s.tc.POST(path, map[string]string{"challenge": challenge, "subject": subject})
}

func (s *sessionSteps) approve(ctx context.Context) error {
	return s.decide("/approve")
}

func (s *sessionSteps) deny(ctx context.Context) error {
	return s.decide("/deny")
}

func (s *sessionSteps) decide(suffix string) error {
	path, err := s.path(suffix)
	if err != nil {
		return err
	}
	subject, err := s.load("userDid")
	if err != nil {
		return err
	}
	return s.tc.POST(path, map[string]string{"subject": subject})
}

func (s *sessionSteps) poll(ctx context.Context) error {
	path, err := s.path("")
	if err != nil {
		return err
	}
	return s.tc.GET(path, nil)
}

func (s *sessionSteps) remove(ctx context.Context) error {
	path, err := s.path("")
	if err != nil {
		return err
	}
	return s.tc.DELETE(path, nil)
}
