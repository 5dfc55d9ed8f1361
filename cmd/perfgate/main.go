package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/artifact"
	"github.com/kx0101/perfgate/internal/cli"
	"github.com/kx0101/perfgate/internal/config"
	"github.com/kx0101/perfgate/internal/input"
	"github.com/kx0101/perfgate/internal/logging"
	"github.com/kx0101/perfgate/internal/proxy"
	"github.com/kx0101/perfgate/internal/publish"
	"github.com/kx0101/perfgate/internal/report"
	"github.com/kx0101/perfgate/internal/scenario"
)

var (
	loadConfigFn        = config.Load
	startReverseProxyFn = proxy.StartReverseProxy
	readCallsFn         = input.ReadCalls
	dryRunFn            = input.DryRun
	synthesizeFn        = scenario.Synthesize
	writeScenarioFn     = scenario.WriteFile
	buildAggregateFn    = aggregate.Build
	writeAggregateFn    = aggregate.WriteFile
	writeArtifactFn     = artifact.Write
	readArtifactFn      = artifact.Read
	generateHTMLFn      = report.GenerateHTML
	newPublisherFn      = newPublisher
	nowFn               = time.Now

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// errBlocked marks a gate that ran fine but did not allow the change.
var errBlocked = errors.New("change blocked by performance gate")

type app struct {
	cfg    *config.Config
	global cli.GlobalOptions
	logger *slog.Logger
}

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) cli.ExitCode {
	cfg, err := loadConfigFn()
	if err != nil {
		return handleError("Failed to load configuration", err)
	}

	a := &app{cfg: cfg, logger: logging.Discard()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, root)
}

func execute(ctx context.Context, root *cobra.Command) cli.ExitCode {
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errBlocked) {
			return cli.ExitFailure
		}
		return handleError("perfgate", err)
	}

	return cli.ExitOK
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "perfgate",
		Short:         "Performance regression gate for CI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{
				Level:  a.global.LogLevel,
				Format: a.global.LogFormat,
				Writer: stderr,
			})
			if err != nil {
				return err
			}

			a.logger = logger
			return nil
		},
	}

	a.global.Bind(root.PersistentFlags(), a.cfg)

	root.AddCommand(newRecordCmd(a))
	root.AddCommand(newSynthesizeCmd(a))
	root.AddCommand(newAggregateCmd(a))
	root.AddCommand(newScoreCmd(a))
	root.AddCommand(newGateCmd(a))

	return root
}

func newPublisher(ctx context.Context, target string, cfg *config.Config) (publish.Publisher, error) {
	switch target {
	case cli.PublishS3:
		return publish.NewS3Publisher(ctx, publish.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			KeyPrefix:       cfg.S3.KeyPrefix,
			PresignedTTL:    cfg.S3.PresignedTTL,
		})
	case cli.PublishHTTP:
		if cfg.Upload.APIKey == "" {
			return nil, fmt.Errorf("PERFGATE_UPLOAD_API_KEY not set")
		}
		return publish.NewHTTPPublisher(cfg.Upload.URL, cfg.Upload.APIKey, cfg.Upload.Environment, cfg.Upload.Timeout)
	default:
		return nil, fmt.Errorf("unknown publish target %q", target)
	}
}

func handleError(msg string, err error) cli.ExitCode {
	fmt.Fprintf(stderr, "%s: %v\n", msg, err)
	return cli.ExitFailure
}
