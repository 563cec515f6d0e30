package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"promptgate/internal/domain"
)

// S3Service exports usage records to Amazon S3 (or compatible APIs).
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Service(client *s3.Client) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

type exportRecord struct {
	ID          int64  `json:"id"`
	SessionKey  string `json:"session_key"`
	IPAddress   string `json:"ip_address"`
	Fingerprint string `json:"fingerprint"`
	Prompt      string `json:"prompt"`
	CreatedAt   string `json:"created_at"`
}

func (s *S3Service) ExportRecords(ctx context.Context, records []domain.UsageRecord, opts ExportOptions) (string, error) {
	if opts.Bucket == "" {
		return "", fmt.Errorf("archive bucket is required")
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no records to export")
	}

	export := make([]exportRecord, len(records))
	for i, rec := range records {
		export[i] = exportRecord{
			ID:          rec.ID,
			SessionKey:  rec.SessionKey,
			IPAddress:   rec.IPAddress,
			Fingerprint: rec.Fingerprint,
			Prompt:      rec.Prompt,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("marshal usage export: %w", err)
	}

	key := fmt.Sprintf("usage-%s.json", time.Now().UTC().Format("20060102T150405Z"))
	if prefix := strings.Trim(opts.KeyPrefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("upload usage export: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", opts.Bucket, key), nil
}

func (s *S3Service) ListExports(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(strings.Trim(prefix, "/")),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list exports: %w", err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				LastModified: obj.LastModified,
			}
			if obj.Key != nil {
				info.Key = *obj.Key
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}
