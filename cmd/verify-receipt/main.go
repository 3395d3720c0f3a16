package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/logutils"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/tenants"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

const (
	exitVerified = iota
	exitFailed
	exitInvalidInput
	exitUnavailable
)

type Args struct {
	URL        string        `arg:"--url" help:"Full receipt URL"`
	Reference  string        `arg:"--reference" help:"Transaction reference, used with --suffix"`
	Suffix     string        `arg:"--suffix" help:"Payer account suffix, used with --reference"`
	Account    string        `arg:"--account,env:CBE_ACCOUNT_NUMBER" help:"Expected receiver account number"`
	Holder     string        `arg:"--holder,env:ACCOUNT_HOLDER_NAME" help:"Expected receiver name"`
	TenantFile string        `arg:"--tenant-file,env:TENANT_FILE" help:"Take the expected receiver from this YAML file"`
	Edir       string        `arg:"--edir" help:"Slug of the edir in --tenant-file"`
	Timeout    time.Duration `arg:"--timeout" default:"2m"`
	LogLevel   string        `arg:"--log-level,env:LOG_LEVEL" default:"warn"`
	PortalArgs
}

type PortalArgs = portal.Args

var log = logrus.StandardLogger()

func main() {
	_ = godotenv.Load()

	var args Args
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)

	identity := verifier.IdentityFromAccount(args.Account, args.Holder)
	if args.TenantFile != "" {
		dir, err := tenants.Load(args.TenantFile)
		if err != nil {
			log.Fatalf("load tenants: %v", err)
		}
		e, ok := dir.Get(args.Edir)
		if !ok {
			log.Errorf("edir %q not found in %s", args.Edir, args.TenantFile)
			os.Exit(exitInvalidInput)
		}
		identity = e.Identity()
	}

	key := portal.KeyFromURL(args.URL)
	if key.FullURL == "" {
		key = portal.KeyFromReference(args.Reference, args.Suffix)
	}

	retriever, err := args.PortalArgs.NewRetriever()
	if err != nil {
		log.Fatalf("create retriever: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()
	outcome, err := verifier.New(retriever, receipt.NewParser()).Verify(ctx, key, identity)
	if err != nil {
		log.Debugf("verification error: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		log.Fatalf("unable to encode outcome: %v", err)
	}
	cancel()
	os.Exit(exitCode(outcome.Status))
}

func exitCode(s verifier.Status) int {
	switch s {
	case verifier.StatusSuccess:
		return exitVerified
	case verifier.StatusInvalidInput:
		return exitInvalidInput
	case verifier.StatusServiceUnavailable:
		return exitUnavailable
	}
	return exitFailed
}
