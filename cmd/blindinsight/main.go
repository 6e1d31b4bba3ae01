// blindinsight 命令行入口。
//
// 用法:
//
//	blindinsight -config config.yaml ask "How is the work-life balance at X?"
//	blindinsight -config config.yaml ingest -collection company_culture -file reviews.json
//	blindinsight -config config.yaml serve -addr :8080
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	blindinsight "github.com/wonjunchoi-arc/blind-sub000"
	"github.com/wonjunchoi-arc/blind-sub000/config"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	app, err := blindinsight.New(cfg, logger, registry)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer app.Close()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: blindinsight [-config file] {ask|ingest|serve} ...")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "ask":
		err = runAsk(ctx, app, args[1:])
	case "ingest":
		err = runIngest(ctx, app, args[1:])
	case "serve":
		err = runServe(ctx, app, registry, logger, args[1:])
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func runAsk(ctx context.Context, app *blindinsight.App, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	session := fs.String("session", "", "session id (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("ask: question required")
	}

	result, err := app.Ask(ctx, question, *session)
	if err != nil {
		return err
	}
	if result.Answer == "" {
		fmt.Println("(no answer)")
		return nil
	}
	fmt.Println(result.Answer)
	fmt.Printf("\n[worker=%s retries=%d session=%s]\n", result.Worker, result.Retries, result.SessionID)
	return nil
}

// ingestFile 摄取文件格式：{"documents": [{"content": ..., "metadata": {...}}, ...]}
type ingestFile struct {
	Documents []types.Document `json:"documents"`
}

func runIngest(ctx context.Context, app *blindinsight.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	collection := fs.String("collection", "", "target collection")
	file := fs.String("file", "", "JSON file with documents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *collection == "" || *file == "" {
		return fmt.Errorf("ingest: -collection and -file are required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read %s: %w", *file, err)
	}
	var payload ingestFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}

	written, err := app.Ingest(ctx, *collection, payload.Documents)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d chunks into %s\n", written, *collection)
	return nil
}

func runServe(ctx context.Context, app *blindinsight.App, registry *prometheus.Registry, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/ask", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Question  string `json:"question"`
			SessionID string `json:"session_id,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		result, err := app.Ask(r.Context(), req.Question, req.SessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if types.IsValidation(err) || err == types.ErrEmptyQuery {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Query       string         `json:"query"`
			Collections []string       `json:"collections,omitempty"`
			Filters     map[string]any `json:"filters,omitempty"`
			TopK        int            `json:"top_k,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		results, err := app.Search(r.Context(), req.Query, req.Collections, req.Filters, req.TopK)
		if err != nil {
			status := http.StatusInternalServerError
			if types.IsValidation(err) || err == types.ErrEmptyQuery {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, results)
	})

	mux.HandleFunc("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Stats(r.Context()))
	})

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	logger.Info("serving", zap.String("addr", *addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
