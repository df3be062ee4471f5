// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/addislicensing/backend/internal/config"
)

// StorageService stores photo and document blobs in S3, or in process memory
// when no AWS credentials are configured (development and tests). Licenses
// own copies of their photos: issuance copies bytes rather than sharing the
// application's key.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config

	mtx   sync.RWMutex
	local map[string][]byte
}

type UploadResult struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// No S3 configured, keep blobs in memory
		return &StorageService{config: config, local: make(map[string][]byte)}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
		local:    make(map[string][]byte),
	}, nil
}

func (s *StorageService) UploadFile(file multipart.File, header *multipart.FileHeader, options UploadOptions) (*UploadResult, error) {
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	if len(options.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(header.Filename))
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("file type %s is not allowed", fileExt)
		}
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	key := s.generateFileName(header.Filename, options.Folder)
	if err := s.WriteBytes(key, fileBytes, header.Header.Get("Content-Type")); err != nil {
		return nil, err
	}

	return &UploadResult{
		URL:      s.PublicURL(key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: header.Header.Get("Content-Type"),
	}, nil
}

// WriteBytes stores a blob under the given key.
func (s *StorageService) WriteBytes(key string, data []byte, contentType string) error {
	if s.s3Client == nil {
		s.mtx.Lock()
		s.local[key] = append([]byte(nil), data...)
		s.mtx.Unlock()
		return nil
	}

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// ReadBytes returns the blob stored under key.
func (s *StorageService) ReadBytes(key string) ([]byte, error) {
	if s.s3Client == nil {
		s.mtx.RLock()
		data, ok := s.local[key]
		s.mtx.RUnlock()
		if !ok {
			return nil, fmt.Errorf("object %s not found", key)
		}
		return append([]byte(nil), data...), nil
	}

	out, err := s.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from S3: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// CopyObject copies the bytes behind srcKey into a fresh key under destFolder
// so the copy has a lifetime independent of the source. Returns the new key.
func (s *StorageService) CopyObject(srcKey, destFolder string) (string, error) {
	data, err := s.ReadBytes(srcKey)
	if err != nil {
		return "", err
	}

	destKey := s.generateFileName(filepath.Base(srcKey), destFolder)
	if err := s.WriteBytes(destKey, data, ""); err != nil {
		return "", err
	}
	return destKey, nil
}

func (s *StorageService) DeleteFile(key string) error {
	if s.s3Client == nil {
		s.mtx.Lock()
		delete(s.local, key)
		s.mtx.Unlock()
		return nil
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *StorageService) PublicURL(key string) string {
	if s.s3Client == nil {
		return fmt.Sprintf("http://localhost:8080/uploads/%s", key)
	}
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}

func (s *StorageService) GetDefaultUploadOptions(category string) UploadOptions {
	switch category {
	case "photos":
		return UploadOptions{
			Folder:       "application_photos",
			MaxSize:      5 * 1024 * 1024, // 5MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
		}
	case "documents":
		return UploadOptions{
			Folder:       "documents",
			MaxSize:      20 * 1024 * 1024, // 20MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf"},
		}
	default:
		return UploadOptions{
			Folder:       "general",
			MaxSize:      5 * 1024 * 1024, // 5MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf"},
		}
	}
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	id := uuid.New()
	ext := filepath.Ext(originalName)
	timestamp := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

// ValidateImage rejects uploads whose leading bytes are not a known image
// signature. Photo fields only accept images.
func (s *StorageService) ValidateImage(file multipart.File) error {
	buffer := make([]byte, 512)
	_, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// Reset file pointer
	file.Seek(0, 0)

	if !isValidImageType(buffer) {
		return fmt.Errorf("invalid image file")
	}
	return nil
}

func isValidImageType(buffer []byte) bool {
	// JPEG
	if len(buffer) >= 3 && buffer[0] == 0xFF && buffer[1] == 0xD8 && buffer[2] == 0xFF {
		return true
	}
	// PNG
	if len(buffer) >= 8 && buffer[0] == 0x89 && buffer[1] == 0x50 && buffer[2] == 0x4E && buffer[3] == 0x47 {
		return true
	}
	// GIF
	if len(buffer) >= 6 && (string(buffer[0:6]) == "GIF87a" || string(buffer[0:6]) == "GIF89a") {
		return true
	}
	return false
}
