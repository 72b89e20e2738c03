package credential

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/thushan/dispatch/internal/core/domain"
)

// AWSStore resolves domain.CredentialAWS references using the AWS SDK's
// ambient credential chain: static access keys, the EC2/ECS
// instance profile, or the web-identity token file populated by an IRSA/EKS
// pod -- whichever the reference's fields select. A RoleARN additionally
// triggers an explicit sts:AssumeRole so the resolved credential is scoped
// down to that role even when the base identity is broader.
type AWSStore struct {
	lookup func(ref string) (domain.Credential, error)
}

// NewAWSStore takes a lookup function that resolves a reference name to
// its static configuration (region, key id, role ARN, etc) -- typically
// backed by the loaded config file.
func NewAWSStore(lookup func(ref string) (domain.Credential, error)) *AWSStore {
	return &AWSStore{lookup: lookup}
}

func (s *AWSStore) Kind() domain.CredentialKind { return domain.CredentialAWS }

func (s *AWSStore) Resolve(ctx context.Context, ref string) (*domain.Credential, error) {
	spec, err := s.lookup(ref)
	if err != nil {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialNotFound, Err: err}
	}

	cfg, err := s.loadConfig(ctx, spec)
	if err != nil {
		return nil, &domain.CredentialError{Ref: ref, Kind: domain.CredentialStoreFailed, Err: err}
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, classifyAWSError(ref, err)
	}

	if spec.RoleARN != "" {
		creds, err = s.assumeRole(ctx, cfg, spec.RoleARN, ref)
		if err != nil {
			return nil, classifyAWSError(ref, err)
		}
	}

	resolved := &domain.Credential{
		Kind:            domain.CredentialAWS,
		Region:          spec.Region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		RoleARN:         spec.RoleARN,
	}
	if creds.CanExpire {
		expiresAt := creds.Expires
		resolved.ExpiresAt = &expiresAt
	}
	return resolved, nil
}

func (s *AWSStore) loadConfig(ctx context.Context, spec domain.Credential) (awssdk.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(spec.Region)}

	if spec.AccessKeyID != "" && spec.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(spec.AccessKeyID, spec.SecretAccessKey, spec.SessionToken)))
	}
	// UseInstanceProfile / UseWebIdentity need no explicit provider: the
	// SDK's default chain already checks IMDS and AWS_WEB_IDENTITY_TOKEN_FILE
	// before falling through to shared config.

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func (s *AWSStore) assumeRole(ctx context.Context, cfg awssdk.Config, roleARN, sessionNamePrefix string) (awssdk.Credentials, error) {
	client := sts.NewFromConfig(cfg)
	sessionName := fmt.Sprintf("dispatch-%s", sessionNamePrefix)
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         &roleARN,
		RoleSessionName: &sessionName,
	})
	if err != nil {
		return awssdk.Credentials{}, err
	}

	creds := awssdk.Credentials{
		AccessKeyID:     *out.Credentials.AccessKeyId,
		SecretAccessKey: *out.Credentials.SecretAccessKey,
		SessionToken:    *out.Credentials.SessionToken,
		CanExpire:       true,
		Expires:         *out.Credentials.Expiration,
	}
	return creds, nil
}

func classifyAWSError(ref string, err error) *domain.CredentialError {
	return &domain.CredentialError{Ref: ref, Kind: domain.CredentialStoreFailed, Err: err}
}
