package ledger

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vorpalhq/vorpal/internal/canonical"
	"github.com/vorpalhq/vorpal/internal/models"
)

// Archiver uploads canonical audit event JSON to object storage.
type Archiver interface {
	ArchiveEvent(ctx context.Context, ev *models.AuditEvent) (objectKey string, err error)
}

// S3Archiver writes canonicalized audit events to paths like
//
//	s3://<bucket>/<prefix>/audit/YYYY/MM/DD/<eventID>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver builds an archiver using ambient AWS configuration
// (AWS_REGION, credentials chain).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveEvent uploads the canonical envelope and returns the object key so
// callers can persist the archive pointer.
func (s *S3Archiver) ArchiveEvent(ctx context.Context, ev *models.AuditEvent) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("nil event")
	}

	canonBytes, err := canonical.Marshal(StreamEnvelope(ev))
	if err != nil {
		return "", fmt.Errorf("canonicalize envelope: %w", err)
	}

	ts := time.Now().UTC()
	if !ev.Timestamp.IsZero() {
		ts = ev.Timestamp
	}
	year, month, day := ts.Date()
	objectKey := path.Join(s.prefix, "audit",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", ev.ID),
	)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(canonBytes),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return objectKey, nil
}

// StreamEnvelope is the wire shape streamed to Kafka and archived to S3.
// The same envelope goes to both sinks so downstream consumers and the
// archive agree byte for byte.
func StreamEnvelope(ev *models.AuditEvent) map[string]interface{} {
	var systemID interface{}
	if ev.SystemID != nil {
		systemID = *ev.SystemID
	}
	var resource interface{}
	if ev.Resource != nil {
		resource = map[string]interface{}{
			"type": ev.Resource.Type,
			"id":   ev.Resource.ID,
		}
	}
	return map[string]interface{}{
		"id":         ev.ID,
		"system_id":  systemID,
		"event_type": ev.EventType,
		"actor": map[string]interface{}{
			"id":           ev.Actor.ID,
			"type":         string(ev.Actor.Type),
			"display_name": ev.Actor.DisplayName,
		},
		"action":        ev.Action,
		"resource":      resource,
		"details":       ev.Details,
		"previous_hash": ev.PreviousHash,
		"event_hash":    ev.EventHash,
		"timestamp":     ev.Timestamp.UTC().Format(canonical.TimeFormat),
	}
}
