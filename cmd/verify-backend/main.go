package main

import (
	"context"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	backend "github.com/edirhub/verify-backend"
	"github.com/edirhub/verify-backend/pkg/audit"
	"github.com/edirhub/verify-backend/pkg/cli"
	"github.com/edirhub/verify-backend/pkg/database"
	"github.com/edirhub/verify-backend/pkg/logutils"
	"github.com/edirhub/verify-backend/pkg/payments"
	"github.com/edirhub/verify-backend/pkg/portal"
	"github.com/edirhub/verify-backend/pkg/receipt"
	"github.com/edirhub/verify-backend/pkg/storage"
	"github.com/edirhub/verify-backend/pkg/tenants"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

type Args struct {
	ListenAddr string `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	LogLevel   string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LogJSON    bool   `arg:"--log-json,env:LOG_JSON" help:"Log as JSON"`
	TenantFile string `arg:"--tenant-file,env:TENANT_FILE" help:"YAML file of edirs to create or update on start"`

	OsAddr               string `arg:"--opensearch-addr,env:OPENSEARCH_ADDR" help:"Index audit records in OpenSearch (optional)"`
	OsIndex              string `arg:"--opensearch-index,env:OPENSEARCH_INDEX" default:"verifications"`
	OsInsecureSkipVerify bool   `arg:"--opensearch-insecure-skip-verify,env:OPENSEARCH_SKIP_TLS"`
	OsPassword           string `arg:"--opensearch-password,env:OPENSEARCH_PASSWORD"`
	OsUsername           string `arg:"--opensearch-username,env:OPENSEARCH_USERNAME"`

	AuditWorkers int `arg:"--audit-workers,env:AUDIT_WORKERS" default:"2"`

	DatabaseArgs
	PortalArgs
	StorageArgs
}

type (
	DatabaseArgs = database.Args
	PortalArgs   = portal.Args
	StorageArgs  = storage.Args
)

var log = logrus.StandardLogger()

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	var args Args
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	logutils.SetLoggerLevel(args.LogLevel)
	logutils.SetJSONFormatter(args.LogJSON)
	ctx := context.Background()

	repo, err := database.Open(args.DatabaseArgs)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer repo.Close()

	if args.TenantFile != "" {
		dir, err := tenants.Load(args.TenantFile)
		if err != nil {
			log.Fatalf("load tenants: %v", err)
		}
		if err := dir.Seed(ctx, repo); err != nil {
			log.Fatalf("seed tenants: %v", err)
		}
	}

	retriever, err := args.PortalArgs.NewRetriever()
	if err != nil {
		log.Fatalf("create retriever: %v", err)
	}
	parser := receipt.NewParser()
	v := verifier.New(retriever, parser)

	store, err := storage.New(ctx, args.StorageArgs)
	if err != nil {
		log.Fatalf("create storage: %v", err)
	}

	var serverOpts []backend.Option
	var indexer *audit.Indexer
	if args.OsAddr != "" {
		opts := []audit.Option{
			audit.WithIndex(args.OsIndex),
			audit.WithUsername(args.OsUsername),
			audit.WithPassword(args.OsPassword),
		}
		if args.OsInsecureSkipVerify {
			opts = append(opts, audit.WithSkipTLS())
		}
		indexer, err = audit.New(args.OsAddr, opts...)
		if err != nil {
			log.Fatalf("create indexer: %v", err)
		}
		if err := indexer.Init(ctx); err != nil {
			log.Fatalf("init indexer: %v", err)
		}
		serverOpts = append(serverOpts, backend.WithSearcher(indexer))
	}

	var serviceOpts []payments.Option
	if store != nil || indexer != nil {
		var recordIndexer audit.RecordIndexer
		if indexer != nil {
			recordIndexer = indexer
		}
		trail := audit.NewTrail(store, recordIndexer, audit.WithWorkers(args.AuditWorkers))
		defer trail.Close()
		serviceOpts = append(serviceOpts, payments.WithAuditRecorder(trail))
	}
	if store != nil {
		serverOpts = append(serverOpts, backend.WithAuditStorage(store))
	}

	s := backend.New(payments.NewService(repo, v, serviceOpts...), parser, serverOpts...)
	if err := s.Run(args.ListenAddr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
