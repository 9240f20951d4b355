package nbat

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/notebook-infra/nb-acceptor/flags"
	"github.com/notebook-infra/nb-acceptor/runner"
)

// Config holds the application configuration
type Config struct {
	RepoDir      string        // Git checkout to discover notebooks in
	Mode         runner.Mode   // Execution mode
	ExcludeFile  string        // Optional YAML file with extra exclusion globs
	PythonBinary string        // Interpreter used to build the base environment
	EngineBinary string        // Notebook execution engine
	WorkDir      string        // Shared session directory for base env and clones
	LogDir       string        // Directory to store per-run notebook logs
	Concurrency  int           // Number of concurrent workers
	RunInterval  time.Duration // Interval between runs
	RunOnce      bool          // Indicates if the service should exit after one run
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	repoDir, err := filepath.Abs(ctx.String(flags.RepoDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for repository '%s': %w", ctx.String(flags.RepoDir.Name), err)
	}

	logDir, err := filepath.Abs(ctx.String(flags.LogDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", ctx.String(flags.LogDir.Name), err)
	}

	// The work dir has to be identical for every worker process of a session:
	// the base environment lock and the fait-accompli directory check both key
	// off this path.
	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "nb-acceptor")
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		RepoDir:      repoDir,
		Mode:         runner.Mode(ctx.String(flags.Mode.Name)),
		ExcludeFile:  ctx.String(flags.ExcludeFile.Name),
		PythonBinary: ctx.String(flags.PythonBinary.Name),
		EngineBinary: ctx.String(flags.EngineBinary.Name),
		WorkDir:      workDir,
		LogDir:       logDir,
		Concurrency:  concurrency,
		RunInterval:  runInterval,
		RunOnce:      runOnce,
		Log:          logger,
	}, nil
}
