// Command linkrot runs one monitoring pass over the links of a source PDF:
// sample every target through a live browser, fold the samples into the
// persisted history, and write an HTML report of what drifted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hazyhaar/linkrot/checker"
	"github.com/hazyhaar/linkrot/config"
	"github.com/hazyhaar/linkrot/runlog"
)

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var (
		configPath  = flag.String("config", "linkrot.yaml", "configuration file")
		pdfPath     = flag.String("pdf", "", "source PDF on disk (overrides config)")
		pdfURL      = flag.String("pdf-url", "", "source PDF URL (overrides config)")
		cleanStart  = flag.Bool("clean-start", false, "discard persisted history and start fresh")
		reportOnly  = flag.Bool("report-only", false, "regenerate the report from the persisted store, no sampling")
		writeConfig = flag.Bool("write-config", false, "write the default configuration to -config and exit")
		urls        stringList
		overrides   stringList
	)
	flag.Var(&urls, "url", "monitor this URL instead of the source document (repeatable)")
	flag.Var(&overrides, "set", "override a setting as key=value (repeatable)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if *writeConfig {
		if err := config.Default().WriteFile(*configPath); err != nil {
			logger.Error("write config", "error", err)
			os.Exit(1)
		}
		logger.Info("wrote default configuration", "path", *configPath)
		return
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *pdfPath != "" {
		cfg.PDFPath = *pdfPath
	}
	if *pdfURL != "" {
		cfg.PDFURL = *pdfURL
	}
	for _, kv := range overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			logger.Error("bad -set, want key=value", "got", kv)
			os.Exit(1)
		}
		if err := cfg.Set(config.Setting(key), value); err != nil {
			logger.Error("apply override", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []checker.Option{}
	if len(urls) > 0 {
		opts = append(opts, checker.WithTargets(urls))
	}
	if *cleanStart {
		opts = append(opts, checker.WithCleanStart())
	}

	if !*reportOnly {
		// The run log is observability only: failing to open it costs the
		// log, never the run.
		logPath := filepath.Join(cfg.Dirs.BaseDir, cfg.Dirs.ProjectSubdir, cfg.Dirs.RunLog)
		if rl, err := runlog.Open(logPath, logger); err != nil {
			logger.Warn("run log unavailable", "path", logPath, "error", err)
		} else {
			defer rl.Close()
			opts = append(opts, checker.WithRunLog(rl))
		}
	}

	svc := checker.New(cfg, logger, opts...)

	if *reportOnly {
		err = svc.Report(ctx)
	} else {
		err = svc.Run(ctx)
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "report:", svc.ReportPath())
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist yet.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("no configuration file, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
