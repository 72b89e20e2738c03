package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/thushan/dispatch/internal/core/domain"
)

// SimpleStore resolves domain.CredentialSimple references
// from either an environment variable or a file on disk. A
// ref of the form "env:NAME" reads os.Getenv("NAME"); "file:/path" reads
// the file's trimmed contents.
type SimpleStore struct{}

func NewSimpleStore() *SimpleStore { return &SimpleStore{} }

func (s *SimpleStore) Kind() domain.CredentialKind { return domain.CredentialSimple }

func (s *SimpleStore) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	select {
	case <-ctx.Done():
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialTimeout, Err: ctx.Err()}
	default:
	}

	value, err := s.read(ref)
	if err != nil {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialNotFound, Err: err}
	}
	if value == "" {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialValidationFailed, Err: fmt.Errorf("resolved empty credential")}
	}

	return &domain.Credential{Kind: domain.CredentialSimple, APIKey: value}, nil
}

func (s *SimpleStore) read(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return strings.TrimSpace(value), nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("unrecognised credential reference %q, expected env: or file: prefix", ref)
	}
}
