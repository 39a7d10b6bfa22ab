// Command pipelinectl is the operator tool for the document pipeline.
//
// Usage:
//
//	pipelinectl token   --user=<uuid> [--ttl=1h]
//	pipelinectl stats
//	pipelinectl retry   --actor=<uuid> <document-id>...
//	pipelinectl advance <document-id>...
//	pipelinectl scan
//
// Configuration is loaded the same way as the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/heartmarshall/docflow-backend/internal/app"
	"github.com/heartmarshall/docflow-backend/internal/auth"
	"github.com/heartmarshall/docflow-backend/internal/config"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/internal/service/pipeline"
	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

const usage = `usage: pipelinectl <command> [flags]

commands:
  token    issue a bearer token for a user
  stats    print document counts
  retry    manually retry failed documents
  advance  drive documents through the pipeline in this process
  scan     run one recovery scan and drive what it finds`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	switch args[0] {
	case "token":
		return runToken(cfg, args[1:])
	case "stats":
		return withPipeline(ctx, cfg, logger, func(p *app.Pipeline) error {
			stats, err := p.Documents.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(stats)
		})
	case "retry":
		return runRetry(ctx, cfg, logger, args[1:])
	case "advance":
		return runAdvance(ctx, cfg, logger, args[1:])
	case "scan":
		return runScan(ctx, cfg, logger)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// withPipeline opens the pipeline, runs fn and flushes the audit buffer
// before closing.
func withPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(p *app.Pipeline) error) error {
	p, err := app.OpenPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	runErr := fn(p)
	if err := p.Sink.Flush(ctx); err != nil {
		return errors.Join(runErr, fmt.Errorf("flush audit: %w", err))
	}
	return runErr
}

func runToken(cfg *config.Config, args []string) error {
	var user string
	var ttl time.Duration

	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.StringVar(&user, "user", "", "user ID (UUID) to issue the token for")
	flagSet.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	id, err := uuid.Parse(user)
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, ttl).GenerateAccessToken(id)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runRetry(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	var actor string

	flagSet := pflag.NewFlagSet("retry", pflag.ContinueOnError)
	flagSet.StringVar(&actor, "actor", "", "operator user ID recorded in the audit log")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	actorID, err := uuid.Parse(actor)
	if err != nil {
		return fmt.Errorf("--actor: %w", err)
	}
	ids, err := parseIDs(flagSet.Args())
	if err != nil {
		return err
	}
	ctx = ctxutil.WithUserID(ctx, actorID)

	return withPipeline(ctx, cfg, logger, func(p *app.Pipeline) error {
		var errs []error
		for _, id := range ids {
			doc, err := p.Service.Retry(ctx, id, domain.RetryManual)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Printf("%s %s\n", id, doc.Status)
		}
		return errors.Join(errs...)
	})
}

func runAdvance(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	return withPipeline(ctx, cfg, logger, func(p *app.Pipeline) error {
		var errs []error
		for _, id := range ids {
			res, err := p.Service.Drive(ctx, id)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Printf("%s %s -> %s\n", id, res.Outcome, res.To)
		}
		return errors.Join(errs...)
	})
}

// runScan performs one scheduler pass with a local runner, then waits for
// the runner to drain.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	return withPipeline(ctx, cfg, logger, func(p *app.Pipeline) error {
		runner := pipeline.NewRunner(logger, p.Service, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
		p.Service.UseQueue(runner)
		scheduler := pipeline.NewScheduler(logger, p.Documents, p.Service, runner, pipeline.SchedulerConfig{
			StallTimeout: cfg.Pipeline.StallTimeout,
			Batch:        cfg.Pipeline.ScanBatch,
			AutoRetry:    cfg.Pipeline.AutoRetry,
		}, nil)

		runCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- runner.Run(runCtx) }()

		res, err := scheduler.Scan(ctx)
		if err != nil {
			stop()
			<-done
			return err
		}
		fmt.Printf("enqueued %d, retried %d\n", res.Enqueued, res.Retried)

		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for runner.InFlight() > 0 {
			select {
			case <-ctx.Done():
				stop()
				<-done
				return ctx.Err()
			case <-ticker.C:
			}
		}
		stop()
		return <-done
	})
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one document ID is required")
	}
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("document ID %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
