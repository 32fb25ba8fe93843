// Command gwatch traces writes to a single global variable in an
// AArch64 Linux executable. It forks and ptrace-attaches the target,
// resolves the variable's runtime address, runs the tracee to main, then
// reports every value transition until the tracee terminates.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"syscall"

	"github.com/google/uuid"

	"github.com/gwatch/gwatch/internal/config"
	"github.com/gwatch/gwatch/internal/history"
	"github.com/gwatch/gwatch/internal/journal"
	"github.com/gwatch/gwatch/internal/sink"
	"github.com/gwatch/gwatch/internal/trace/breakpoint"
	"github.com/gwatch/gwatch/internal/trace/target"
	"github.com/gwatch/gwatch/internal/trace/tracee"
	"github.com/gwatch/gwatch/internal/trace/tracer"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: gwatch --var <name> [--config <path>] <executable> [args...]

Traces every write to the global variable named by --var in <executable>,
printing resolution diagnostics, the variable's initial value, and each
value transition to stdout until the tracee exits.

Options:
  --var <name>      name of the global variable to watch (required)
  --config <path>   optional YAML configuration file
  --help            print this message and exit 0
`)
}

func main() {
	os.Exit(run())
}

// run contains the entire CLI body so that defers (closing the history
// store and journal) execute before os.Exit.
func run() int {
	varName := flag.String("var", "", "name of the global variable to watch")
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	help := flag.Bool("help", false, "print usage and exit")
	flag.Usage = usage
	flag.Parse()

	if *help {
		usage()
		return 0
	}

	args := flag.Args()
	if *varName == "" || len(args) < 1 {
		usage()
		return 1
	}
	execPath := args[0]
	execArgs := args[1:]

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// ptrace requires every syscall against the tracee to originate from the
	// same OS thread that attached it; pin this goroutine for the process
	// lifetime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sessionID := uuid.NewString()
	s, closeSink, err := buildSink(cfg, sessionID, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
		return 1
	}
	defer closeSink()

	pid, cleanup, err := spawnTracee(execPath, execArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
		return 1
	}
	defer cleanup()

	ctl := tracee.New(pid)

	rt, err := target.Resolve(execPath, *varName, pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
		return 1
	}

	if err := breakpoint.RunToMain(ctl, rt.MainRuntimeAddress); err != nil {
		fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
		return 1
	}

	if err := tracer.Run(ctl, rt, *varName, s); err != nil {
		fmt.Fprintf(os.Stderr, "gwatch: %v\n", err)
		return 1
	}

	return 0
}

// spawnTracee forks execPath with PTRACE_TRACEME requested pre-exec, then
// blocks for the initial SIGTRAP delivered by the kernel on execve. The
// returned pid is stopped and ready for target.Resolve and
// breakpoint.RunToMain.
func spawnTracee(execPath string, args []string) (pid int, cleanup func(), err error) {
	procAttr := &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Ptrace: true},
	}
	argv := append([]string{execPath}, args...)

	proc, err := os.StartProcess(execPath, argv, procAttr)
	if err != nil {
		return 0, nil, fmt.Errorf("spawn tracee %q: %w", execPath, err)
	}

	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(proc.Pid, &ws, 0, nil); err != nil {
		_ = proc.Kill()
		return 0, nil, fmt.Errorf("wait for initial exec stop: %w", err)
	}
	if !ws.Stopped() {
		_ = proc.Kill()
		return 0, nil, fmt.Errorf("tracee did not stop at exec (status=%v)", ws)
	}

	return proc.Pid, func() { _ = proc.Kill() }, nil
}

// buildSink assembles the Sink fan-out described by cfg: stdout is always
// included; a local SQLite history, a tamper-evident journal, and a remote
// collector are added only when the corresponding configuration is set.
// The returned close func releases any opened resources and must run after
// tracer.Run returns.
func buildSink(cfg *config.Config, sessionID string, logger *slog.Logger) (sink.Sink, func(), error) {
	sinks := []sink.Sink{sink.NewStdoutSink(os.Stdout)}
	var closers []func()

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		sinks = append(sinks, sink.NewHistorySink(store, sessionID, logger))
	}

	if cfg.JournalPath != "" {
		logr, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		closers = append(closers, func() { _ = logr.Close() })
		sinks = append(sinks, sink.NewJournalSink(logr, logger))
	}

	if cfg.Collector.Addr != "" {
		sinks = append(sinks, sink.NewRemoteSink(cfg.Collector.Addr, cfg.Collector.Secret, sessionID, cfg.Collector.HostLabel, logger))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return sink.NewMultiSink(sinks...), closeAll, nil
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
