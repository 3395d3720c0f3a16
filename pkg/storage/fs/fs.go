package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/crypt"
	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/fs")

// Fs stores audit records as files below a local directory.
type Fs struct {
	dir    string
	cipher *crypt.Cipher
}

var _ model.RWStorage = (*Fs)(nil)

type Option func(*Fs)

func WithCipher(c *crypt.Cipher) Option {
	return func(fs *Fs) {
		fs.cipher = c
	}
}

func New(dir string, opts ...Option) (*Fs, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("unable to create storage directory: %w", err)
	}
	fs := &Fs{dir: dir}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *Fs) path(edirSlug string, id uuid.UUID) (string, error) {
	if !models.ValidSlug(edirSlug) {
		return "", fmt.Errorf("invalid edir slug %q", edirSlug)
	}
	return filepath.Join(fs.dir, filepath.FromSlash(model.ObjectName(edirSlug, id))), nil
}

func (fs *Fs) Store(_ context.Context, rec models.AuditRecord) error {
	data, err := model.Marshal(rec, fs.cipher)
	if err != nil {
		return err
	}
	p, err := fs.path(rec.EdirSlug, rec.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return err
	}
	log.Debugf("created file %s", p)
	return nil
}

func (fs *Fs) Retrieve(_ context.Context, edirSlug string, id uuid.UUID) (*models.AuditRecord, error) {
	p, err := fs.path(edirSlug, id)
	if err != nil {
		return nil, model.ErrNotFound
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.Unmarshal(data, fs.cipher)
}
