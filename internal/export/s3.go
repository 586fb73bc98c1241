package export

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/config"
)

// Uploader pushes artifact files to the configured S3 bucket.
type Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewUploader creates a new S3 uploader using the default credential chain.
func NewUploader(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Uploader{
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("component", "s3_uploader").Logger(),
	}, nil
}

// UploadFile uploads a local file under the configured prefix.
func (u *Uploader) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	fullKey := path.Join(u.prefix, key)
	if _, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(fullKey),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}

	u.log.Debug().Str("bucket", u.bucket).Str("key", fullKey).Msg("Artifact uploaded")
	return nil
}
