package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/config"
	"github.com/t77yq/opskit/internal/events"
	"github.com/t77yq/opskit/internal/executor"
	"github.com/t77yq/opskit/internal/fileops"
	"github.com/t77yq/opskit/internal/model"
	"github.com/t77yq/opskit/internal/monitor"
	"github.com/t77yq/opskit/internal/scheduler"
	"github.com/t77yq/opskit/internal/storage"
)

var (
	cfgFile string

	runDir      string
	runEnv      []string
	runTimeout  time.Duration
	runElevated bool

	seqStopOnError bool

	scheduleInterval  time.Duration
	scheduleCron      string
	scheduleMaxRuns   int
	scheduleImmediate bool
)

// exitCodeError carries a command's non-zero exit code out of cobra so
// deferred cleanup still runs before the process exits
type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", int(e))
}

// app bundles the wired components behind the CLI commands
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	runner    *executor.Runner
	files     *fileops.Manager
	monitor   *monitor.SystemMonitor
	history   *storage.SQLiteRunHistory
	nc        *nats.Conn
	publisher *events.Publisher
}

// newApp loads configuration and wires the toolkit components
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		files:   fileops.NewManager(logger),
		monitor: monitor.NewSystemMonitor(logger),
	}

	var history storage.RunHistoryStorage
	if cfg.History.Enabled {
		a.history, err = storage.NewSQLiteRunHistory(logger, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		history = a.history
	}

	if cfg.Events.Enabled {
		opts := []nats.Option{
			nats.Name(cfg.Events.Name),
			nats.MaxReconnects(cfg.Events.MaxReconnects),
			nats.ReconnectWait(cfg.Events.ReconnectWait),
			nats.Timeout(cfg.Events.ConnectTimeout),
		}
		a.nc, err = nats.Connect(cfg.Events.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}

		js, err := a.nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		a.publisher, err = events.NewPublisher(js, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
	}

	a.runner = executor.NewRunner(executor.RunnerConfig{
		DefaultTimeout: cfg.Executor.DefaultTimeout,
		WorkingDir:     cfg.Executor.WorkingDir,
		Env:            cfg.Executor.Env,
	}, logger, history, a.publisher)

	return a, nil
}

// close releases app resources
func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}
	a.logger.Sync()
}

// buildLogger creates the zap logger from config
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// commandFromArgs builds a Command from positional args and run flags
func commandFromArgs(args []string) (model.Command, error) {
	if len(args) == 0 {
		return model.Command{}, errors.New("no command given")
	}

	env := make(map[string]string, len(runEnv))
	for _, pair := range runEnv {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return model.Command{}, fmt.Errorf("invalid env override %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}

	return model.Command{
		Name:    args[0],
		Args:    args[1:],
		Dir:     runDir,
		Env:     env,
		Timeout: runTimeout,
	}, nil
}

// printResult writes the captured output
func printResult(result *model.ExecutionResult) {
	fmt.Print(result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Execute a single command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			command, err := commandFromArgs(args)
			if err != nil {
				return err
			}

			var result *model.ExecutionResult
			if runElevated {
				result, err = a.runner.RunElevated(cmd.Context(), command)
			} else {
				result, err = a.runner.Run(cmd.Context(), command)
			}
			if err != nil {
				return err
			}

			printResult(result)
			if result.ExitCode != 0 {
				return exitCodeError(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runDir, "dir", "", "working directory for the command")
	cmd.Flags().StringArrayVar(&runEnv, "env", nil, "environment override KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-command timeout")
	cmd.Flags().BoolVar(&runElevated, "elevated", false, "run with elevated privileges")

	return cmd
}

func newRunSequenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-sequence [flags] \"command one\" \"command two\" ...",
		Short: "Execute commands in order",
		Long:  "Execute commands in order. Each argument is split on whitespace into a command and its arguments.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			commands := make([]model.Command, 0, len(args))
			for _, arg := range args {
				fields := strings.Fields(arg)
				if len(fields) == 0 {
					return fmt.Errorf("empty command in sequence")
				}
				commands = append(commands, model.Command{
					Name:    fields[0],
					Args:    fields[1:],
					Timeout: runTimeout,
				})
			}

			seq, err := a.runner.RunSequence(cmd.Context(), commands, seqStopOnError)
			if err != nil {
				return err
			}

			for i, result := range seq.Results {
				fmt.Printf("[%d] %s (exit %d)\n", i+1, result.Command, result.ExitCode)
				fmt.Print(result.Stdout)
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if seq.Truncated {
				return fmt.Errorf("sequence stopped after %d of %d commands", len(seq.Results), len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seqStopOnError, "stop-on-error", true, "stop after the first non-zero exit code")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-command timeout")

	return cmd
}

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream [flags] -- command [args...]",
		Short: "Execute a command and print output lines as they arrive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			command, err := commandFromArgs(args)
			if err != nil {
				return err
			}

			result, err := a.runner.Stream(cmd.Context(), command, func(line model.StreamLine) {
				if line.Source == model.StreamStderr {
					fmt.Fprintln(os.Stderr, line.Text)
					return
				}
				fmt.Println(line.Text)
			})
			if err != nil {
				return err
			}

			if result.ExitCode != 0 {
				return exitCodeError(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runDir, "dir", "", "working directory for the command")
	cmd.Flags().StringArrayVar(&runEnv, "env", nil, "environment override KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-command timeout")

	return cmd
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule [flags] -- command [args...]",
		Short: "Fire a command periodically until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			command, err := commandFromArgs(args)
			if err != nil {
				return err
			}

			printFiring := func(result *model.ExecutionResult) {
				fmt.Printf("--- %s (exit %d)\n", result.CompletedAt.Format(time.RFC3339), result.ExitCode)
				fmt.Print(result.Stdout)
				fmt.Fprint(os.Stderr, result.Stderr)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if scheduleCron != "" {
				cronSched := scheduler.NewCronScheduler(a.runner, a.logger)
				err := cronSched.AddSchedule(&model.CronSchedule{
					Name:       command.String(),
					Expression: scheduleCron,
					Command:    command,
				}, printFiring)
				if err != nil {
					return err
				}
				cronSched.Start()
				defer cronSched.Stop()

				<-ctx.Done()
				return nil
			}

			sched := scheduler.NewIntervalScheduler(a.runner, a.logger)
			defer sched.Stop()

			id, err := sched.ScheduleWithOptions(command, scheduleInterval, scheduler.ScheduleOptions{
				MaxRuns:      scheduleMaxRuns,
				ImmediateRun: scheduleImmediate,
			}, printFiring)
			if err != nil {
				return err
			}
			fmt.Printf("scheduled task %s, interrupt to cancel\n", id)

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&scheduleInterval, "interval", 0, "firing interval (0 fires once immediately)")
	cmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression with seconds field, overrides --interval")
	cmd.Flags().IntVar(&scheduleMaxRuns, "max-runs", 0, "stop after this many firings (0 means unlimited)")
	cmd.Flags().BoolVar(&scheduleImmediate, "immediate", false, "fire once right away instead of waiting out the first interval")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-firing timeout")

	return cmd
}

func newExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists name",
		Short: "Report whether an executable resolves on PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if !a.runner.Exists(args[0]) {
				return fmt.Errorf("%s: not found", args[0])
			}
			fmt.Printf("%s: found\n", args[0])
			return nil
		},
	}
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy source target",
		Short: "Copy a file, creating missing target directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.files.Copy(args[0], args[1])
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move source target",
		Short: "Move a file, creating missing target directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.files.Move(args[0], args[1])
		},
	}
}

func newCompressCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "compress -o archive.zip file...",
		Short: "Create a ZIP archive from the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			return a.files.Compress(args, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path")
	cmd.MarkFlagRequired("output")

	return cmd
}

func newMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata path",
		Short: "Print file metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			meta, err := a.files.Metadata(args[0])
			if err != nil {
				return err
			}
			return printJSON(meta)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a host resource snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if !watch {
				status, err := a.monitor.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(status)
			}

			interval := a.cfg.Monitor.Interval
			collector := monitor.NewCollector(a.monitor, a.publisher, interval, a.logger)
			collector.Start(ctx)
			defer collector.Stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if status := collector.Latest(); status != nil {
						if err := printJSON(status); err != nil {
							return err
						}
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "collect repeatedly at the configured monitor interval")

	return cmd
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "opskit",
		Short:         "opskit - host administration toolkit",
		Long:          "Execute and schedule commands, manage files and read host resource metrics.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	rootCmd.AddCommand(
		newRunCmd(),
		newRunSequenceCmd(),
		newStreamCmd(),
		newScheduleCmd(),
		newExistsCmd(),
		newCopyCmd(),
		newMoveCmd(),
		newCompressCmd(),
		newMetadataCmd(),
		newStatusCmd(),
	)

	return rootCmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}

	var code exitCodeError
	if errors.As(err, &code) {
		os.Exit(int(code))
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
