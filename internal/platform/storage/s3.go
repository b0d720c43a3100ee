package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// IDPrefix is the key prefix for uploaded student ID images.
const IDPrefix = "student-ids/"

// maxObjectBytes bounds downloads; uploads are capped at 10 MB client side.
const maxObjectBytes = 11 << 20

type S3Store struct {
	client     *s3.S3
	bucket     string
	presignTTL time.Duration
}

// NewS3Store connects to bucket. An empty endpoint means AWS itself; any
// other endpoint (MinIO, localstack) is addressed path-style.
func NewS3Store(endpoint, region, accessKey, secretKey, bucket string, presignTTL time.Duration) (*S3Store, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: bucket, presignTTL: presignTTL}, nil
}

// IDKey builds the object key for a user's ID image.
func IDKey(userID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return IDPrefix + userID + "/" + uuid.NewString() + ext
}

// PresignUpload returns a PUT URL valid for the store's TTL, bound to
// contentType, and the key the object will have.
func (s *S3Store) PresignUpload(_ context.Context, userID, fileName, contentType string) (string, string, time.Duration, error) {
	key := IDKey(userID, fileName)
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	url, err := req.Presign(s.presignTTL)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, key, s.presignTTL, nil
}

// Download returns the object's bytes and content type.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object: %w", err)
	}
	return data, aws.StringValue(resp.ContentType), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
