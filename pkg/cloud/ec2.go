// Package cloud discovers and supports the provisioned EC2 compute.
//
// Provisioning itself is terraform's job; this package answers the questions
// terraform state cannot: which running instance carries the deployment tag,
// and what is its public address.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

// EC2API is the slice of the EC2 client this package uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
}

// Config selects region and optional static credentials. When the credential
// pair is empty the default AWS chain (env, profile, instance role) applies.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Client wraps the EC2 API for instance discovery and key-pair import.
type Client struct {
	api EC2API
}

// New builds a Client from the AWS config chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.WrapExternal(err, "AWS config")
	}
	return &Client{api: ec2.NewFromConfig(awsCfg)}, nil
}

// NewWithAPI wires an explicit API implementation. Used by tests.
func NewWithAPI(api EC2API) *Client {
	return &Client{api: api}
}

// ResolveAddress finds the public address of the running instance carrying
// the given tag. No match is a prerequisite failure: provisioning either did
// not happen or did not converge, and retrying the query will not fix that.
func (c *Client) ResolveAddress(ctx context.Context, tagKey, tagValue string) (string, error) {
	out, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + tagKey), Values: []string{tagValue}},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	if err != nil {
		return "", apperrors.WrapExternal(err, "EC2 DescribeInstances")
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if instance.PublicIpAddress != nil && *instance.PublicIpAddress != "" {
				return *instance.PublicIpAddress, nil
			}
		}
	}
	return "", apperrors.NewPrerequisiteError(
		fmt.Sprintf("running instance with tag %s=%s and a public address", tagKey, tagValue))
}

// ImportKeyPair registers the public key under name. A duplicate key pair is
// idempotency tolerance: the key is already usable, so it counts as success.
func (c *Client) ImportKeyPair(ctx context.Context, name string, publicKey []byte) error {
	_, err := c.api.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(name),
		PublicKeyMaterial: publicKey,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidKeyPair.Duplicate" {
			return nil
		}
		return apperrors.WrapExternal(err, "EC2 ImportKeyPair")
	}
	return nil
}

// OnEC2 probes the instance metadata service with a short deadline. Used by
// doctor to tell local runs from runs already on the provisioned host.
func OnEC2(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client := imds.New(imds.Options{})
	_, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	return err == nil
}
