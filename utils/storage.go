package utils

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"vidbudova/config"
)

const maxImageSize = 5 * 1024 * 1024 // 5MB

var (
	ErrImageTooLarge = errors.New("file too large, maximum size is 5MB")
	ErrImageType     = errors.New("invalid file type, allowed types are jpeg, png and webp")
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

func newS3Client(cfg config.StorageConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// R2-style providers need a custom endpoint and path-style keys
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// UploadProjectImage stores a project photo under an organized key and
// returns its public URL.
func UploadProjectImage(file *multipart.FileHeader, projectSlug string) (string, error) {
	if file.Size > maxImageSize {
		return "", ErrImageTooLarge
	}
	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return "", fmt.Errorf("%w: %q", ErrImageType, contentType)
	}

	ext := filepath.Ext(file.Filename)
	uniqueName := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.New().String(), ext)
	objectKey := filepath.Join("projects", projectSlug, "images", uniqueName)

	client, err := newS3Client(config.AppConfig.Storage)
	if err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("could not open file: %w", err)
	}
	defer src.Close()

	_, err = client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(config.AppConfig.Storage.Bucket),
		Key:         aws.String(objectKey),
		Body:        src,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("could not upload file: %w", err)
	}

	return fmt.Sprintf("%s/%s", config.AppConfig.Storage.PublicURL, objectKey), nil
}

// DeleteProjectImage removes a previously uploaded object by its public URL.
func DeleteProjectImage(fullURL string) error {
	objectKey := strings.TrimPrefix(fullURL, config.AppConfig.Storage.PublicURL+"/")

	client, err := newS3Client(config.AppConfig.Storage)
	if err != nil {
		return err
	}

	_, err = client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(config.AppConfig.Storage.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("could not delete file: %w", err)
	}
	return nil
}
