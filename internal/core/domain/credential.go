package domain

import "time"

// CredentialKind tags the variant carried by a Credential.
type CredentialKind string

const (
	CredentialSimple CredentialKind = "simple"
	CredentialBearer CredentialKind = "bearer"
	CredentialAWS    CredentialKind = "aws"
)

// Credential is a shared-immutable tagged variant. Once constructed by the
// Resolver it is never mutated; callers needing a refreshed credential ask
// the Resolver again.
type Credential struct {
	ExpiresAt *time.Time

	APIKey string
	Token  string

	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	SessionToken       string
	RoleARN            string
	UseInstanceProfile bool
	UseWebIdentity     bool

	Kind CredentialKind
}

// Expired reports whether the credential is stale relative to now. A
// Credential with no ExpiresAt never expires on its own (the cache TTL still
// applies independently).
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// AuthHeaders returns the HTTP headers this credential variant injects into
// an outbound request. AWS credentials return no headers here: the Bedrock
// adapter builds its own signed client from the resolved key/secret instead
// of a static header.
func (c *Credential) AuthHeaders() map[string]string {
	switch c.Kind {
	case CredentialSimple:
		return map[string]string{"Authorization": "Bearer " + c.APIKey}
	case CredentialBearer:
		return map[string]string{"Authorization": "Bearer " + c.Token}
	case CredentialAWS:
		return map[string]string{}
	default:
		return map[string]string{}
	}
}
