package transport

import (
	"context"
	"strings"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/Moka-Reads/QuickFetch/internal/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

// TestS3Getter_EndToEnd exercises the s3:// transport against a real
// (containerized) object store. Skipped when Docker is unavailable.
func TestS3Getter_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z")
	if err != nil {
		t.Skipf("docker unavailable, skipping s3 integration test: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(container) }()

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	rawEndpoint := "http://" + endpoint

	const bucket = "quickfetch-test"
	const objectKey = "widget/1.0.0.tar.gz"
	const payload = "payload-bytes"

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(container.Username, container.Password, "")),
	)
	require.NoError(t, err)
	rawClient := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.BaseEndpoint = awssdk.String(rawEndpoint)
		o.UsePathStyle = true
	})
	_, err = rawClient.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: awssdk.String(bucket)})
	require.NoError(t, err)

	client, err := s3.NewClient(&s3.BackendConfig{
		Provider:  "minio",
		Region:    "us-east-1",
		Endpoint:  rawEndpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
	})
	require.NoError(t, err)

	require.NoError(t, client.PutObject(ctx, bucket, objectKey, strings.NewReader(payload), nil))

	getter := NewS3Getter(client)
	resp, err := getter.Get(ctx, "s3://"+bucket+"/"+objectKey)
	require.NoError(t, err)

	body, err := Read(ctx, resp, "widget", Full, nil)
	require.NoError(t, err)
	require.Equal(t, payload, string(body))
}
