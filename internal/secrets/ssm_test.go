package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSSMReference(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantRegion string
		wantPath   string
		wantErr    bool
	}{
		{name: "simple path", ref: "ssm:///github/octocat/password", wantPath: "/github/octocat/password"},
		{name: "with region", ref: "ssm://eu-west-1/github/cookie", wantRegion: "eu-west-1", wantPath: "/github/cookie"},
		{name: "region without path", ref: "ssm://us-west-2", wantErr: true},
		{name: "empty", ref: "ssm://", wantErr: true},
		{name: "wrong scheme", ref: "op:///x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, path, err := parseSSMReference(tt.ref)
			if tt.wantErr {
				var invalid *InvalidReferenceError
				if !errors.As(err, &invalid) {
					t.Errorf("expected InvalidReferenceError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if region != tt.wantRegion {
				t.Errorf("region = %q, want %q", region, tt.wantRegion)
			}
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
		})
	}
}

func TestSSMResolver_ParseAWSError(t *testing.T) {
	const ref, param = "ssm:///github/password", "/github/password"

	tests := []struct {
		name       string
		stderr     string
		wantReason string
		wantFix    string
	}{
		{"access denied", "An error occurred (AccessDeniedException) when calling the GetParameter operation", "access denied", "IAM permissions"},
		{"expired token", "An error occurred (ExpiredTokenException) when calling the GetParameter operation", "credentials expired", "aws sso login"},
		{"no credentials", `Unable to locate credentials. You can configure credentials by running "aws configure".`, "no AWS credentials found", "aws configure"},
		{"endpoint", `Could not connect to the endpoint URL: "https://ssm.nowhere.amazonaws.com/"`, "could not connect", "region"},
		{"generic", "some unexpected error message", "unexpected error", ""},
	}

	r := &SSMResolver{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.parseAWSError([]byte(tt.stderr), ref, param)

			var backendErr *BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("expected BackendError, got %T: %v", err, err)
			}
			if backendErr.Backend != "AWS SSM" {
				t.Errorf("Backend = %q, want %q", backendErr.Backend, "AWS SSM")
			}
			if !strings.Contains(backendErr.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", backendErr.Reason, tt.wantReason)
			}
			if !strings.Contains(backendErr.Fix, tt.wantFix) {
				t.Errorf("Fix = %q, want it to contain %q", backendErr.Fix, tt.wantFix)
			}
		})
	}
}

func TestSSMResolver_ParseAWSError_ParameterNotFound(t *testing.T) {
	r := &SSMResolver{}
	err := r.parseAWSError([]byte("An error occurred (ParameterNotFound) when calling the GetParameter operation"),
		"ssm:///missing", "/missing")

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
	if notFound.Backend != "AWS SSM" {
		t.Errorf("Backend = %q, want %q", notFound.Backend, "AWS SSM")
	}
}
