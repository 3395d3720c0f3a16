package b2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	rcloneb2 "github.com/rclone/rclone/backend/b2"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/crypt"
	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/b2")

var _ model.RWStorage = (*B2)(nil)

// B2 stores audit records in a Backblaze B2 bucket.
type B2 struct {
	b2fs   fs.Fs
	cipher *crypt.Cipher
}

type Config struct {
	Account    string
	Key        string
	BucketName string

	// Records are encrypted when set.
	Passphrase string
}

func New(ctx context.Context, config Config) (*B2, error) {
	if config.Account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if config.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	if config.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	b2fs, err := rcloneb2.NewFs(ctx,
		"b2",
		config.BucketName+"/",
		configmap.Simple{
			"account":    config.Account,
			"key":        config.Key,
			"chunk_size": "5M",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open bucket %s: %w", config.BucketName, err)
	}

	b := &B2{b2fs: b2fs}
	if config.Passphrase == "" {
		log.Warnf("no passphrase provided, audit records will be stored unencrypted")
		return b, nil
	}
	if b.cipher, err = crypt.New(config.Passphrase); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *B2) Store(ctx context.Context, rec models.AuditRecord) error {
	data, err := model.Marshal(rec, b.cipher)
	if err != nil {
		return err
	}
	info := newObjectInfo(model.ObjectName(rec.EdirSlug, rec.ID), rec.CreatedAt, int64(len(data)))
	obj, err := b.b2fs.Put(ctx, bytes.NewReader(data), info)
	if err != nil {
		return fmt.Errorf("unable to upload %s: %w", info.Remote(), err)
	}
	log.Debugf("uploaded %s (%d bytes)", obj.Remote(), obj.Size())
	return nil
}

func (b *B2) Retrieve(ctx context.Context, edirSlug string, id uuid.UUID) (*models.AuditRecord, error) {
	obj, err := b.b2fs.NewObject(ctx, model.ObjectName(edirSlug, id))
	if errors.Is(err, fs.ErrorObjectNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r, err := obj.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return model.Unmarshal(data, b.cipher)
}
