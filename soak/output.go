package soak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pricefuse/config"
	"pricefuse/internal/storage"
)

// WriteFile writes the report as indented JSON. An empty path or "-" writes
// to stdout.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode soak report: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Upload stores the report in S3 under the configured soak prefix and
// returns the object key.
func (r *Report) Upload(ctx context.Context, cfg *config.Config) (string, error) {
	client, err := storage.NewClient(ctx, cfg.Storage.S3)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode soak report: %w", err)
	}

	key := reportKey(cfg.Soak.S3Prefix, r)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cfg.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-id": r.RunID,
			"asset":  r.Asset,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload soak report: %w", err)
	}
	return key, nil
}

func reportKey(prefix string, r *Report) string {
	var parts []string
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		fmt.Sprintf("asset=%s", strings.ToLower(r.Asset)),
		fmt.Sprintf("soak_%s_%s.json", r.StartTime.UTC().Format("20060102150405"), r.RunID),
	)
	return filepath.ToSlash(filepath.Join(parts...))
}
