// Package database opens the payments repository selected on the command
// line.
package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/payments/gormstore"
	"github.com/edirhub/verify-backend/pkg/payments/sqlitestore"
)

var log = logrus.StandardLogger().WithField("package", "database")

type Args struct {
	DbDriver string `arg:"--db-driver,env:DB_DRIVER" default:"sqlite" help:"postgres or sqlite"`
	DbDsn    string `arg:"--db-dsn,env:DB_DSN" default:"verify.db" help:"Connection string, may be keychain:<element>"`
}

func Open(args Args) (payments.Repository, error) {
	switch strings.ToLower(args.DbDriver) {
	case "postgres", "postgresql":
		s, err := gormstore.Open(args.DbDsn)
		if err != nil {
			return nil, fmt.Errorf("unable to open postgres: %w", err)
		}
		log.Infof("using postgres")
		return s, nil
	case "", "sqlite":
		s, err := sqlitestore.Open(args.DbDsn)
		if err != nil {
			return nil, fmt.Errorf("unable to open sqlite database %s: %w", args.DbDsn, err)
		}
		log.Infof("using sqlite database %s", args.DbDsn)
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver: %s", args.DbDriver)
}
