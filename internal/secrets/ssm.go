package secrets

import (
	"context"
	"net/url"
	"strings"
)

// SSMResolver resolves ssm://[region]/path references from AWS Systems
// Manager Parameter Store through the aws CLI.
type SSMResolver struct{}

// Scheme returns "ssm".
func (r *SSMResolver) Scheme() string {
	return "ssm"
}

// Resolve fetches a SecureString parameter with decryption.
func (r *SSMResolver) Resolve(ctx context.Context, reference string) (string, error) {
	region, paramPath, err := parseSSMReference(reference)
	if err != nil {
		return "", err
	}

	args := []string{
		"ssm", "get-parameter",
		"--name", paramPath,
		"--with-decryption",
		"--query", "Parameter.Value",
		"--output", "text",
	}
	if region != "" {
		args = append(args, "--region", region)
	}

	return runCLI(ctx, "aws", "AWS SSM", "Install from https://aws.amazon.com/cli/",
		func(stderr []byte) error { return r.parseAWSError(stderr, reference, paramPath) },
		args...)
}

// parseSSMReference splits an ssm:// URI into region and parameter path.
//
//	ssm:///path/to/param          -> ("", "/path/to/param")
//	ssm://us-west-2/path/to/param -> ("us-west-2", "/path/to/param")
func parseSSMReference(ref string) (region, path string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "ssm" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected ssm:// URI"}
	}
	if u.Path == "" || u.Path[0] != '/' {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "parameter path must start with /"}
	}
	return u.Host, u.Path, nil
}

// awsCLIErrors maps aws CLI stderr fragments to a reason and remediation.
var awsCLIErrors = []struct {
	markers []string
	reason  string
	fix     func(paramPath string) string
}{
	{[]string{"AccessDeniedException"}, "access denied",
		func(p string) string { return "Check IAM permissions for ssm:GetParameter on " + p }},
	{[]string{"ExpiredToken"}, "AWS credentials expired",
		func(string) string { return "Run: aws sso login\nOr refresh your credentials." }},
	{[]string{"Unable to locate credentials"}, "no AWS credentials found",
		func(string) string {
			return "Configure credentials:\n  aws configure\n  Or set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY\n  Or run: aws sso login"
		}},
	{[]string{"Could not connect to the endpoint URL"}, "could not connect to AWS endpoint",
		func(string) string { return "Check your region setting and network connectivity." }},
}

// parseAWSError converts aws CLI errors to actionable error types.
func (r *SSMResolver) parseAWSError(stderr []byte, reference, paramPath string) error {
	msg := string(stderr)

	if strings.Contains(msg, "ParameterNotFound") {
		return &NotFoundError{Reference: reference, Backend: "AWS SSM"}
	}
	for _, known := range awsCLIErrors {
		for _, marker := range known.markers {
			if strings.Contains(msg, marker) {
				return &BackendError{
					Backend:   "AWS SSM",
					Reference: reference,
					Reason:    known.reason,
					Fix:       known.fix(paramPath),
				}
			}
		}
	}

	return &BackendError{
		Backend:   "AWS SSM",
		Reference: reference,
		Reason:    strings.TrimSpace(msg),
	}
}

func init() {
	Register(&SSMResolver{})
}
