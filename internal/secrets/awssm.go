package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// secretsManagerAPI is the subset of the Secrets Manager client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerResolver resolves awssm://[region]/secret-id[#json-key]
// references through the AWS SDK default credential chain. With a fragment,
// the secret string is parsed as a JSON object and that key is returned.
type AWSSecretsManagerResolver struct {
	newClient func(ctx context.Context, region string) (secretsManagerAPI, error)
}

// Scheme returns "awssm".
func (r *AWSSecretsManagerResolver) Scheme() string {
	return "awssm"
}

// Resolve fetches the current version of the secret.
func (r *AWSSecretsManagerResolver) Resolve(ctx context.Context, reference string) (string, error) {
	region, secretID, field, err := parseAWSSMReference(reference)
	if err != nil {
		return "", err
	}

	newClient := r.newClient
	if newClient == nil {
		newClient = defaultSecretsManagerClient
	}
	client, err := newClient(ctx, region)
	if err != nil {
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "loading AWS configuration failed",
			Fix:       "Configure credentials with: aws configure (or aws sso login)",
			Err:       err,
		}
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
		}
		return "", &BackendError{
			Backend:   "AWS Secrets Manager",
			Reference: reference,
			Reason:    "GetSecretValue failed",
			Fix:       "Check IAM permissions for secretsmanager:GetSecretValue on " + secretID,
			Err:       err,
		}
	}

	value := aws.ToString(out.SecretString)
	if out.SecretString == nil && out.SecretBinary != nil {
		value = string(out.SecretBinary)
	}
	if field == "" {
		return value, nil
	}
	return extractJSONField(reference, value, field)
}

func defaultSecretsManagerClient(ctx context.Context, region string) (secretsManagerAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// parseAWSSMReference splits an awssm:// URI.
//
//	awssm:///github/octocat               -> ("", "github/octocat", "")
//	awssm://us-east-1/github/octocat#pass -> ("us-east-1", "github/octocat", "pass")
func parseAWSSMReference(ref string) (region, secretID, field string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "awssm" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "expected awssm:// URI"}
	}
	secretID = strings.TrimPrefix(u.Path, "/")
	if secretID == "" {
		return "", "", "", &InvalidReferenceError{Reference: ref, Reason: "missing secret id"}
	}
	return u.Host, secretID, u.Fragment, nil
}

func extractJSONField(reference, value, field string) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err != nil {
		return "", &InvalidReferenceError{Reference: reference, Reason: "secret is not a JSON object"}
	}
	v, ok := obj[field]
	if !ok {
		return "", &NotFoundError{Reference: reference, Backend: "AWS Secrets Manager"}
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func init() {
	Register(&AWSSecretsManagerResolver{})
}
