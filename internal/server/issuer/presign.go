package issuer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/remotestorage/internal/server/config"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPostObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error) {
		return pc.PresignPostObject(ctx, in, optFns...)
	}
)

// postPolicy describes the browser-style form upload being authorized.
type postPolicy struct {
	Key          string
	Access       string
	Mime         string
	Downloadable bool
	MaxSize      int64
	Expires      time.Duration
}

// conditions lists the policy conditions matching the form fields the
// uploader sends. Content-Type is only pinned for readable objects.
func (p postPolicy) conditions() []interface{} {
	conds := []interface{}{
		map[string]string{"acl": p.Access},
		[]interface{}{"content-length-range", 0, p.MaxSize},
	}
	if p.Access != accessPrivate {
		conds = append(conds, []interface{}{"starts-with", "$Content-Type", ""})
	}
	if p.Downloadable {
		conds = append(conds, []interface{}{"starts-with", "$Content-Disposition", ""})
	}
	return conds
}

// Presigner issues presigned POST forms for the S3-compatible files storage.
type Presigner struct {
	config *sc.Config
}

func NewPresigner(config *sc.Config) *Presigner {
	return &Presigner{config: config}
}

// StorageKey returns a fresh object key for name, partitioned by UTC date.
func StorageKey(now time.Time, name string) string {
	now = now.UTC()
	name = strings.ReplaceAll(name, "/", "_")
	return fmt.Sprintf("uploads/%d/%d/%d/%v/%s", now.Year(), now.Month(), now.Day(), uuid.New(), name)
}

func (p *Presigner) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(p.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.config.S3RootUser,     // MINIO_ROOT_USER
			p.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(p.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignPost returns the form URL and fields authorizing one upload.
func (p *Presigner) PresignPost(ctx context.Context, policy postPolicy) (*s3.PresignedPostRequest, error) {
	presignClient, err := p.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	req, err := presignPostObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.config.S3Bucket),
		Key:    aws.String(policy.Key),
	}, func(o *s3.PresignPostOptions) {
		o.Expires = policy.Expires
		o.Conditions = policy.conditions()
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}
