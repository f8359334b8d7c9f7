// Command medguard submits generation requests through the validated
// pipeline and prints each outcome as JSON.
//
// With -prompt a single request is submitted. Without it, prompts are read
// line by line from stdin. Chat prompts are sent as turns of a session named
// after -user, so follow-ups carry the approved exchange so far as context.
//
// Configuration is read from MEDGUARD_* environment variables (see package
// config).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/medguard"
	"github.com/hupe1980/medguard/config"
	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/guard"
	"github.com/hupe1980/medguard/logging"
	"github.com/hupe1980/medguard/metrics"
	"github.com/hupe1980/medguard/model"
	"github.com/hupe1980/medguard/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errNoPrompt = errors.New("no prompt given")

type options struct {
	kind    string
	role    string
	user    string
	prompt  string
	docPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.kind, "kind", "chat", "request kind: chat, quiz, mindmap, infographic, slide, doc-qa")
	flag.StringVar(&opts.role, "role", "student", "caller role: student or faculty")
	flag.StringVar(&opts.user, "user", "cli", "user id recorded in the audit trail")
	flag.StringVar(&opts.prompt, "prompt", "", "prompt to submit; read line by line from stdin when empty")
	flag.StringVar(&opts.docPath, "doc", "", "text file whose paragraphs become doc-qa context")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	zl, err := logging.NewZapLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logging.NewZapAdapter(zl), opts, os.Stdin, os.Stdout); err != nil {
		zl.Error("medguard failed", zap.Error(err))
		_ = zl.Sync()
		stop()
		os.Exit(1)
	}
}

// result is the printed form of an outcome; Outcome.Err is not serialized
// on its own.
type result struct {
	core.Outcome
	Error string `json:"error,omitempty"`
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, opts options, in io.Reader, out io.Writer) error {
	kind, err := core.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	role, err := core.ParseRole(opts.role)
	if err != nil {
		return err
	}

	var closers []closer
	defer func() { closeAll(closers, logger) }()

	provider, c, err := buildProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}
	if c != nil {
		closers = append(closers, c)
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient.Close)
		logger.Info("Connected to Redis", "addr", cfg.RedisAddr)
	}

	store, c := buildCache(ctx, cfg, redisClient)
	if c != nil {
		closers = append(closers, c)
	}

	sink, cs, err := buildAudit(ctx, cfg, logger)
	closers = append(closers, cs...)
	if err != nil {
		return fmt.Errorf("build audit sink: %w", err)
	}

	collector := metrics.New()
	if cfg.MetricsAddr != "" {
		closers = append(closers, serveMetrics(cfg.MetricsAddr, collector, logger))
	}

	var contextProvider core.ContextProvider
	if opts.docPath != "" {
		turns, err := loadDocument(opts.docPath)
		if err != nil {
			return err
		}
		contextProvider = core.ContextProviderFunc(func(context.Context, core.Request) ([]core.Turn, error) {
			return turns, nil
		})
	}

	mg := medguard.New(provider, func(o *medguard.Options) {
		o.Cache = store
		o.Audit = sink
		o.Sessions = buildSessions(cfg, redisClient)
		o.CacheTTL = cfg.CacheTTL
		o.Limiter = ratelimit.New(cfg.LimiterOptions())
		o.Guard = guard.New(cfg.GuardOptions())
		o.RetryPolicy = cfg.RetryPolicy()
		o.ContextProvider = contextProvider
		o.Deadline = cfg.Deadline
		o.MaxProviderCalls = cfg.MaxProviderCalls
		o.Metrics = collector
		o.Logger = logger
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	submit := func(prompt string) error {
		requestOpts := func(o *core.RequestOptions) {
			o.UserID = opts.user
			o.Role = role
		}

		var res core.Outcome
		if kind == core.KindChat {
			var herr error
			res, herr = mg.Chat(ctx, opts.user, prompt, requestOpts)
			if herr != nil {
				if res.Status == "" {
					return herr
				}
				logger.Warn("Chat history not saved", "error", herr)
			}
		} else {
			res = mg.Generate(ctx, kind, prompt, requestOpts)
		}

		r := result{Outcome: res}
		if res.Err != nil {
			r.Error = res.Err.Error()
		}
		return enc.Encode(r)
	}

	if opts.prompt != "" {
		if err := submit(opts.prompt); err != nil {
			return err
		}
	} else if err := converse(ctx, in, submit); err != nil {
		return err
	}

	if cfg.PushgatewayURL != "" {
		host, _ := os.Hostname()
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := collector.Push(pushCtx, cfg.PushgatewayURL, "medguard_cli", host); err != nil {
			logger.Warn("Metrics push failed", "error", err)
		}
	}

	return nil
}

// converse submits one request per non-empty input line.
func converse(ctx context.Context, in io.Reader, submit func(prompt string) error) error {
	seen := false

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seen = true

		if err := submit(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read prompts: %w", err)
	}
	if !seen {
		return errNoPrompt
	}

	return nil
}

func serveMetrics(addr string, collector *metrics.Collector, logger logging.Logger) closer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", "error", err)
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// loadDocument splits a text file into blank-line separated excerpts.
func loadDocument(path string) ([]core.Turn, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var turns []core.Turn
	for _, para := range strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n\n") {
		if p := strings.TrimSpace(para); p != "" {
			turns = append(turns, core.Turn{Role: model.RoleDocument, Text: p})
		}
	}

	if len(turns) == 0 {
		return nil, fmt.Errorf("document %s has no text", path)
	}

	return turns, nil
}
