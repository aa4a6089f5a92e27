package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"tablehub/api/internal/config"
	"tablehub/api/internal/media/sniffer"
	"tablehub/api/internal/models"
	"tablehub/api/internal/storage"
)

const maxAvatarBytes = 2 << 20 // 2 MiB

var ErrInvalidAvatar = errors.New("invalid avatar image")

type AvatarUserStore interface {
	UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error
}

type AvatarService struct {
	users AvatarUserStore
	store *storage.ObjectStore
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAvatarService(users AvatarUserStore, store *storage.ObjectStore, cfg *config.AppConfig, log zerolog.Logger) *AvatarService {
	return &AvatarService{
		users: users,
		store: store,
		cfg:   cfg,
		log:   log,
	}
}

// SetAvatar stores a raster profile image and records its public URL
// on the user row. Declared and sniffed content types must agree.
func (s *AvatarService) SetAvatar(ctx context.Context, user models.User, file multipart.File, header *multipart.FileHeader) (string, error) {
	if file == nil || header == nil {
		return "", ErrInvalidAvatar
	}
	if header.Size > maxAvatarBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrInvalidAvatar, maxAvatarBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if len(data) == 0 {
		return "", ErrInvalidAvatar
	}
	if len(data) > maxAvatarBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrInvalidAvatar, maxAvatarBytes)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAvatar, err)
	}

	declared := sniffer.MimeType(header.Header.Get("Content-Type"))
	if declared != "" && declared != result.MIME {
		return "", fmt.Errorf("%w: declared %s, actual %s", ErrInvalidAvatar, declared, result.MIME)
	}

	objectKey := path.Join("avatars", fmt.Sprintf("%s.%s", user.ID, result.Type))
	bucket := s.cfg.Storage.BucketAvatars

	_, err = s.store.Client().PutObject(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: result.MIME,
	})
	if err != nil {
		return "", fmt.Errorf("put avatar object: %w", err)
	}

	url := s.store.PublicURL(bucket, objectKey)
	if err := s.users.UpdateAvatarURL(ctx, user.ID, url); err != nil {
		return "", fmt.Errorf("save avatar url: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("object_key", objectKey).Msg("avatar updated")
	return url, nil
}
