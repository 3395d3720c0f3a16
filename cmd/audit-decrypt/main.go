// Command audit-decrypt reads an encrypted audit object on stdin and writes
// the JSON record to stdout.
package main

import (
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/crypt"
)

var args struct {
	Passphrase string `arg:"env:AUDIT_PASSPHRASE"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)

	if args.Passphrase == "" {
		log.Fatalf("passphrase cannot be empty")
	}

	c, err := crypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("unable to create crypt: %v", err)
	}

	plain, err := c.DecryptReader(os.Stdin)
	if err != nil {
		log.Fatalf("unable to decrypt: %v", err)
	}

	if _, err := os.Stdout.Write(plain); err != nil {
		log.Fatalf("unable to write: %v", err)
	}
}
