package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/crypt"
	"github.com/edirhub/verify-backend/pkg/storage/b2"
	"github.com/edirhub/verify-backend/pkg/storage/fs"
	"github.com/edirhub/verify-backend/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage")

// Args selects and configures the audit record storage. It is embedded in
// the command line arguments of the binaries.
type Args struct {
	StorageType  string `arg:"--storage-type,env:STORAGE_TYPE" default:"none" help:"Where to keep audit records: fs, b2 or none"`
	FsPath       string `arg:"--fs-path,env:FS_PATH" help:"Directory for audit records - when using the fs storage"`
	B2AccountId  string `arg:"--b2-account-id,env:B2_ACCOUNT" help:"Account for B2 storage - when using the b2 storage"`
	B2AccountKey string `arg:"--b2-account-key,env:B2_KEY" help:"Key for B2 storage - when using the b2 storage"`
	B2BucketName string `arg:"--b2-bucket-name,env:B2_BUCKET_NAME" help:"Bucket Name for B2 storage - when using the b2 storage"`
	Passphrase   string `arg:"--audit-passphrase,env:AUDIT_PASSPHRASE" help:"Encrypt audit records with this passphrase (optional)"`
}

// New returns the configured storage, or nil for the none type.
func New(ctx context.Context, args Args) (model.RWStorage, error) {
	switch strings.ToLower(args.StorageType) {
	case "", "none":
		log.Infof("audit storage disabled")
		return nil, nil
	case "fs":
		if args.FsPath == "" {
			return nil, fmt.Errorf("fs path is required for the fs storage")
		}
		var opts []fs.Option
		if args.Passphrase != "" {
			c, err := crypt.New(args.Passphrase)
			if err != nil {
				return nil, err
			}
			opts = append(opts, fs.WithCipher(c))
		}
		s, err := fs.New(args.FsPath, opts...)
		if err != nil {
			return nil, fmt.Errorf("unable to create fs storage: %w", err)
		}
		return s, nil
	case "b2":
		s, err := b2.New(ctx, b2.Config{
			Account:    args.B2AccountId,
			Key:        args.B2AccountKey,
			BucketName: args.B2BucketName,
			Passphrase: args.Passphrase,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to create b2 storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type: %s", args.StorageType)
}
