package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	describe "github.com/ethereum-optimism/infra/op-describe"
	"github.com/ethereum-optimism/infra/op-describe/flags"
	"github.com/ethereum-optimism/infra/op-describe/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-describe"
	app.Usage = "Describe/it suite runner"
	app.Description = "op-describe discovers suite files, runs their cases concurrently and reports the suite tree"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler
	return app
}

// exitErrHandler maps typed errors to exit codes
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
		return
	}
	cli.HandleExitCoder(cli.Exit(err.Error(), describe.ExitCode(err)))
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := describe.NewConfig(ctx, log, ctx.String(flags.TestDir.Name))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, describe.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	var opts []describe.Option
	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, describe.NewRuntimeError(fmt.Errorf("invalid metrics config: %w", err))
	}
	if metricsCfg.Enabled {
		svc := service.New(log, service.Config{
			MetricsAddr: net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort)),
		})
		opts = append(opts, describe.WithService(svc), describe.WithReporter(svc.Results))
	}

	app, err := describe.New(ctx.Context, cfg, Version, closeApp, opts...)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, describe.NewRuntimeError(fmt.Errorf("failed to create op-describe: %w", err))
	}

	return app, nil
}
