package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/edirhub/verify-backend/pkg/logutils"
	"github.com/edirhub/verify-backend/pkg/receipt"
)

var args struct {
	Path     string `arg:"positional,required" help:"Receipt PDF"`
	Text     bool   `arg:"--text" help:"Print the normalized text layer instead of the parsed fields"`
	LogLevel string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)

	data, err := os.ReadFile(args.Path)
	if err != nil {
		log.Fatalf("unable to read %s: %v", args.Path, err)
	}

	if args.Text {
		text, err := receipt.ExtractText(data)
		if err != nil {
			log.Fatalf("unable to extract text: %v", err)
		}
		fmt.Println(receipt.Normalize(text))
		return
	}

	fields := receipt.NewParser().Parse(data)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fields); err != nil {
		log.Fatalf("unable to encode fields: %v", err)
	}
	if !fields.Complete() {
		os.Exit(1)
	}
}
