// Package storage ships finished job directories to object storage for
// long-term traceability. Archival is optional and never affects the job
// outcome; local artifacts remain the source of truth.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"inspection-orchestrator/core/models"
)

// Archiver uploads job artifacts to an S3 bucket, preserving the local
// captures/<part>/<date>/<time>/ layout as the object key prefix.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	root   string
}

// NewArchiver creates an archiver for the given bucket. Credentials and
// region come from the default AWS config chain.
func NewArchiver(ctx context.Context, bucket, prefix, storageRoot string) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		root:   storageRoot,
	}, nil
}

// ArchiveJob uploads every file under the job's storage directory.
// Individual upload failures abort the walk; the caller treats the whole
// archive as best-effort.
func (a *Archiver) ArchiveJob(ctx context.Context, job *models.JobContext) error {
	if job.StorageDir == "" {
		return fmt.Errorf("job %s has no storage directory", job.ID)
	}

	uploaded := 0
	err := filepath.WalkDir(job.StorageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		key, kerr := a.keyFor(path)
		if kerr != nil {
			return kerr
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		_, perr := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if perr != nil {
			return fmt.Errorf("failed to upload %s: %w", key, perr)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[archive] job %s: %d object(s) uploaded to s3://%s", job.ID, uploaded, a.bucket)
	return nil
}

// keyFor maps a local artifact path onto its object key.
func (a *Archiver) keyFor(path string) (string, error) {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return "", err
	}
	key := filepath.ToSlash(rel)
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}
	return key, nil
}
