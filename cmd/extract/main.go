// Command extract runs the claims pipeline for a local file and prints the
// stored record as JSON. With -ask it also answers a question about it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"claimsqa/internal/app"
	"claimsqa/internal/config"
	"claimsqa/internal/observability"
	"claimsqa/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("extract failed")
	}
}

func run() error {
	question := flag.String("ask", "", "question to answer from the extraction")
	contentType := flag.String("type", "", "media type of the file (detected from the extension when empty)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: extract [-ask QUESTION] [-type MEDIA_TYPE] FILE\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	observability.InitLogger(cfg.Telemetry.ServiceName, "console", cfg.Log.Level)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	ct := *contentType
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}

	rec, err := a.Service.Extract(ctx, &service.ExtractInput{
		FileName:    filepath.Base(path),
		ContentType: ct,
		Size:        info.Size(),
		Body:        f,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return err
	}

	if *question == "" {
		return nil
	}
	answer, err := a.Service.Ask(ctx, &service.AskInput{DocumentID: rec.DocumentID, Question: *question})
	if err != nil {
		return err
	}
	fmt.Println(answer.Answer)
	return nil
}
