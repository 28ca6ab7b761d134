package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_DESCRIBE"

// DefaultConfigFile is read from the working directory when --config is not set
const DefaultConfigFile = "op-describe.toml"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Path to the directory from which to discover suite files",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   fmt.Sprintf("Path to a TOML config file. Defaults to %s in the working directory if present", DefaultConfigFile),
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Quiet = &cli.BoolFlag{
		Name:    "quiet",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "QUIET"),
		Usage:   "Only print failed cases and the suites containing them",
	}
	ShowSummary = &cli.BoolFlag{
		Name:    "show-summary",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_SUMMARY"),
		Usage:   "Print the pass/fail/time footer after the report",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Usage:   "Run suite files concurrently, in batches of --batch-size",
	}
	BatchSize = &cli.IntFlag{
		Name:    "batch-size",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BATCH_SIZE"),
		Usage:   "Number of files per parallel batch. 0 runs all files at once",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for each suite file and each case without its own timeout (e.g. '5s'). 0 disables it",
	}
	CountSuiteErrors = &cli.BoolFlag{
		Name:    "count-suite-errors",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COUNT_SUITE_ERRORS"),
		Usage:   "Count errors escaping a suite body as failures",
	}
	NoColor = &cli.BoolFlag{
		Name:    "no-color",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_COLOR"),
		Usage:   "Disable colored output",
	}
	ShowTable = &cli.BoolFlag{
		Name:    "table",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TABLE"),
		Usage:   "Also print a results table after the report",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run logs",
	}
	Preload = &cli.StringSliceFlag{
		Name:    "preload",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PRELOAD"),
		Usage:   "Suite files or directories run sequentially before the discovered files",
	}
	Include = &cli.StringSliceFlag{
		Name:    "include",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE"),
		Usage:   "Glob patterns selecting suite files, relative to the test directory",
	}
	Exclude = &cli.StringSliceFlag{
		Name:    "exclude",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXCLUDE"),
		Usage:   "Path prefixes or glob patterns to skip, relative to the test directory",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
}

var optionalFlags = []cli.Flag{
	ConfigFile,
	RunInterval,
	Quiet,
	ShowSummary,
	Parallel,
	BatchSize,
	Timeout,
	CountSuiteErrors,
	NoColor,
	ShowTable,
	LogDir,
	Preload,
	Include,
	Exclude,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
