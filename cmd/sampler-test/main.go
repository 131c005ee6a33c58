package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skobkin/benchmarco/internal/app"
	"github.com/skobkin/benchmarco/internal/config"
	"github.com/skobkin/benchmarco/internal/gpu"
)

type options struct {
	reportFile string
	layoutFile string
	smiPath    string
	sample     bool
	jsonOutput bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.reportFile, "report", "", "Read the report from this file instead of running the tool")
	flag.StringVar(&opts.layoutFile, "layout", envOrDefault("APP_SMI_LAYOUT_FILE", ""), "YAML line/offset table (default built-in)")
	flag.StringVar(&opts.smiPath, "smi-path", envOrDefault("APP_SMI_PATH", gpu.DefaultCommand), "Diagnostic tool executable")
	flag.BoolVar(&opts.sample, "sample", false, "Also collect one full snapshot")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the snapshot as JSON")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	layout := gpu.DefaultLayout()
	if opts.layoutFile != "" {
		loaded, err := gpu.LoadLayout(opts.layoutFile)
		if err != nil {
			logger.Error("load layout", "err", err)
			os.Exit(1)
		}
		layout = loaded
	}

	raw, err := readReport(opts)
	if err != nil {
		logger.Error("read report", "err", err)
		os.Exit(1)
	}

	text := gpu.DecodeReport(raw)
	fmt.Printf("Report: %d lines, layout needs %d\n", len(gpu.SplitReport(text)), layout.MaxLine()+1)
	printFields(os.Stdout, gpu.Inspect(text, layout))

	if _, err := gpu.ParseReport(text, layout); err != nil {
		fmt.Printf("\nParse result: %v\n", err)
	} else {
		fmt.Println("\nParse result: ok")
	}

	if !opts.sample {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load configuration", "err", err)
		os.Exit(1)
	}
	cfg.SMI.Path = opts.smiPath
	cfg.SMI.LayoutFile = opts.layoutFile

	fmt.Println()
	fmt.Printf("Collecting snapshot at %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Println(strings.Repeat("-", 60))

	snap, err := app.Sample(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("sample", "err", err)
		os.Exit(1)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			logger.Error("encode snapshot", "err", err)
			os.Exit(1)
		}
		return
	}
	for field, ferr := range snap.Failures() {
		fmt.Printf("%s failed: %v\n", field, ferr)
	}
	if len(snap.Failures()) == 0 {
		fmt.Println("all fields collected")
	}
}

func readReport(opts options) ([]byte, error) {
	if opts.reportFile != "" {
		return os.ReadFile(opts.reportFile)
	}
	return gpu.NewCommandRunner(opts.smiPath, 0).Run(context.Background())
}

func printFields(w io.Writer, results []gpu.FieldResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tLINE\tOFFSET\tTOKEN\tERROR\tRAW")
	for _, res := range results {
		errText := "-"
		if res.Err != nil {
			errText = res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%q\t%s\t%q\n",
			res.Field.Name, res.Field.Coord.Line, res.Field.Coord.Offset, res.Token, errText, res.Raw)
	}
	tw.Flush()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
