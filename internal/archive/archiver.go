// Package archive uploads AUDIT-mode BalanceResults to S3 for long-term
// retention once a period has been signed off.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/domain"
)

// Archiver uploads closed BalanceResults to an S3 bucket.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// New builds an Archiver for bucket in region, using the default AWS
// credential chain.
func New(ctx context.Context, bucket, region string, log zerolog.Logger) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		log:      log.With().Str("component", "archive").Logger(),
	}, nil
}

// Key returns the object key a period's result is archived under.
func Key(period domain.CalculationPeriod) string {
	return fmt.Sprintf("balance-results/%04d/%02d.json", period.Year, period.Month)
}

// ArchiveBalanceResult serializes result and uploads it under Key(period).
func (a *Archiver) ArchiveBalanceResult(ctx context.Context, period domain.CalculationPeriod, result domain.BalanceResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("archive: marshal balance result: %w", err)
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(period)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload balance result: %w", err)
	}

	a.log.Info().Str("period", period.String()).Str("bucket", a.bucket).Msg("balance result archived")
	return nil
}
