package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "NB_ACCEPTOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	RepoDir = &cli.StringFlag{
		Name:    "repo-dir",
		Value:   ".",
		EnvVars: prefixEnvVars("REPO_DIR"),
		Usage:   "Path to the git checkout to discover notebooks in",
	}
	Mode = &cli.StringFlag{
		Name:    "mode",
		Value:   "isolated",
		EnvVars: prefixEnvVars("MODE"),
		Usage:   "Execution mode: 'isolated' clones a shared base environment per notebook, 'in-place' runs in the current environment and writes out/<dir>/<name>.out.ipynb artifacts",
	}
	ExcludeFile = &cli.StringFlag{
		Name:    "excludes",
		Value:   "",
		EnvVars: prefixEnvVars("EXCLUDES"),
		Usage:   "Path to a YAML file with additional exclusion glob patterns (eg. 'excludes.yaml')",
	}
	PythonBinary = &cli.StringFlag{
		Name:    "python-binary",
		Value:   "python3",
		EnvVars: prefixEnvVars("PYTHON_BINARY"),
		Usage:   "Path to the python interpreter used to build the base environment",
	}
	EngineBinary = &cli.StringFlag{
		Name:    "engine-binary",
		Value:   "papermill",
		EnvVars: prefixEnvVars("ENGINE_BINARY"),
		Usage:   "Path to the notebook execution engine",
	}
	WorkDir = &cli.StringFlag{
		Name:    "work-dir",
		Value:   "",
		EnvVars: prefixEnvVars("WORK_DIR"),
		Usage:   "Directory holding the base environment and its clones. Must be shared by all worker processes of a session. Defaults to a fixed path under the system temp directory.",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: prefixEnvVars("LOG_DIR"),
		Usage:   "Directory to store per-run notebook logs",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: prefixEnvVars("CONCURRENCY"),
		Usage:   "Number of concurrent notebook workers (0 = number of CPUs)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error, crit",
	}
)

var Flags = []cli.Flag{
	RepoDir,
	Mode,
	ExcludeFile,
	PythonBinary,
	EngineBinary,
	WorkDir,
	LogDir,
	Concurrency,
	RunInterval,
	LogLevel,
}

// CheckRequired validates flag values that the cli package cannot check
// itself.
func CheckRequired(ctx *cli.Context) error {
	mode := ctx.String(Mode.Name)
	if mode != "isolated" && mode != "in-place" {
		return fmt.Errorf("flag %s must be 'isolated' or 'in-place', got %q", Mode.Name, mode)
	}
	return nil
}
