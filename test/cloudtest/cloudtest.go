// Package cloudtest provides helpers for cloud integration tests using moto.
//
// These helpers enable testing against a local EC2-compatible endpoint without
// requiring real AWS credentials. Tests using this package should be tagged
// with //go:build cloudintegration.
//
// Usage:
//
//	func TestMyEC2Function(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    id := cloudtest.RunTaggedInstance(t, ctx, "Project", "absdeploy")
//	    // ... test code ...
//	}
package cloudtest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

const (
	// DefaultEndpoint is the default moto server endpoint.
	// Port 5555 avoids conflict with macOS AirTunes on 5000.
	DefaultEndpoint = "http://localhost:5555"

	// DefaultRegion is the default AWS region for tests.
	DefaultRegion = "us-east-1"

	// TestAccessKeyID is the access key used for moto (accepts any).
	TestAccessKeyID = "testing"

	// TestSecretAccessKey is the secret key used for moto (accepts any).
	TestSecretAccessKey = "testing"
)

var (
	// Endpoint is the moto server endpoint, configurable via MOTO_ENDPOINT env var.
	Endpoint = getEnvOrDefault("MOTO_ENDPOINT", DefaultEndpoint)

	// Region is the AWS region for tests, configurable via MOTO_REGION env var.
	Region = getEnvOrDefault("MOTO_REGION", DefaultRegion)

	// client caches the EC2 client for reuse across tests.
	client     *ec2.Client
	clientOnce sync.Once
	clientErr  error
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Available checks if the moto server is reachable.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips the test if moto server is not available.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s (start with: make moto-start)", Endpoint)
	}
}

// Reset clears all moto state. Call this between tests for isolation.
func Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint+"/moto-api/reset", nil)
	if err != nil {
		return fmt.Errorf("create reset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset returned status %d", resp.StatusCode)
	}

	return nil
}

// ResetT resets moto state, failing the test on error.
func ResetT(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := Reset(ctx); err != nil {
		t.Fatalf("failed to reset moto: %v", err)
	}
}

// Client returns a shared EC2 client configured for moto.
func Client() (*ec2.Client, error) {
	clientOnce.Do(func() {
		ctx := context.Background()
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				TestAccessKeyID,
				TestSecretAccessKey,
				"",
			)),
		)
		if err != nil {
			clientErr = fmt.Errorf("load config: %w", err)
			return
		}

		client = ec2.NewFromConfig(cfg, func(o *ec2.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
		})
	})

	return client, clientErr
}

// ClientT returns the EC2 client, failing the test on error.
func ClientT(t *testing.T) *ec2.Client {
	t.Helper()
	c, err := Client()
	if err != nil {
		t.Fatalf("failed to create EC2 client: %v", err)
	}
	return c
}

// RunTaggedInstance launches one instance carrying the given tag and registers
// cleanup. Returns the instance ID.
func RunTaggedInstance(t *testing.T, ctx context.Context, tagKey, tagValue string) string {
	t.Helper()

	c := ClientT(t)

	out, err := c.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String("ami-12345678"),
		InstanceType: ec2types.InstanceTypeT2Micro,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String(tagKey), Value: aws.String(tagValue)},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to run instance: %v", err)
	}
	if len(out.Instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(out.Instances))
	}
	id := aws.ToString(out.Instances[0].InstanceId)

	t.Cleanup(func() {
		TerminateInstance(t, context.Background(), id)
	})

	return id
}

// TerminateInstance terminates an instance, logging failures instead of
// failing the test.
func TerminateInstance(t *testing.T, ctx context.Context, instanceID string) {
	t.Helper()

	c := ClientT(t)
	_, err := c.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		t.Logf("warning: failed to terminate instance %s: %v", instanceID, err)
	}
}
