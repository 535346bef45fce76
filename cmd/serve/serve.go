package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/stratastor/afdmon/config"
	"github.com/stratastor/afdmon/internal/constants"
	"github.com/stratastor/afdmon/internal/logmux"
	"github.com/stratastor/afdmon/internal/monitor"
	"github.com/stratastor/afdmon/internal/supervisor"
	"github.com/stratastor/afdmon/pkg/afdconfig"
	"github.com/stratastor/afdmon/pkg/alerting"
	"github.com/stratastor/afdmon/pkg/identity"
	"github.com/stratastor/afdmon/pkg/lifecycle"
	"github.com/stratastor/afdmon/pkg/msa"
	"github.com/stratastor/logger"
)

var (
	detached   bool
	workerKind string
)

// NewServeCmd doubles as the supervisor entrypoint and, via the
// internal --worker flag, the re-exec target the process table uses
// to spawn a single monitor or log-multiplexer worker (§4.E
// "start_process"/"start_log_process"): the supervisor forks itself
// with `serve --worker monitor <work-dir> <index>` or `serve --worker
// logmux <work-dir> <index> <log-capabilities>`.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [work-dir] [index] [log-capabilities]",
		Short: "Start the afdmon supervisor, or (internal) a single worker",
		RunE:  runServe,
	}

	cmd.Flags().BoolVarP(&detached, "detach", "d", false, "Run the supervisor as a daemon")
	cmd.Flags().StringVar(&workerKind, "worker", "", "Internal use: run a single worker (monitor|logmux) instead of the supervisor")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	switch workerKind {
	case "monitor":
		return runMonitorWorker(args)
	case "logmux":
		return runLogmuxWorker(args)
	case "":
		return runSupervisor()
	default:
		return fmt.Errorf("unknown worker kind %q", workerKind)
	}
}

func runSupervisor() error {
	cfg := config.GetConfig()
	pidFile := constants.PIDFilePath
	if err := lifecycle.EnsureSingleInstance(pidFile); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	if detached {
		ctx := &daemon.Context{
			PidFileName: pidFile,
			PidFilePerm: 0644,
			LogFileName: cfg.Logs.Path,
			LogFilePerm: 0640,
			WorkDir:     "/",
			Umask:       027,
			Args:        []string{"afdmon", "serve"},
		}

		d, err := ctx.Reborn()
		if err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		if d != nil {
			fmt.Println("afdmon is running as a daemon")
			return nil
		}
		defer ctx.Release()
	}

	return startSupervisor(cfg)
}

func startSupervisor(cfg *config.Config) error {
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), "supervisor")
	if err != nil {
		return err
	}

	var alerter *alerting.Notifier
	if cfg.Alerting.WebhookURL != "" {
		alerter = alerting.New(cfg.Alerting.WebhookURL, time.Duration(cfg.Alerting.TimeoutS)*time.Second, l)
	}

	resolver := identity.NewResolver(l, cfg.Identity.LDAPEnabled, cfg.Identity.LDAPURL,
		cfg.Identity.BaseDN, cfg.Identity.BindDN, cfg.Identity.BindPwd, cfg.Identity.GroupDN)

	restartWindow, err := time.ParseDuration(cfg.Supervisor.RestartWindow)
	if err != nil {
		l.Warn("invalid supervisor.restartWindow, falling back to default", "value", cfg.Supervisor.RestartWindow, "error", err.Error())
		restartWindow = 10 * time.Second
	}

	workDir := cfg.Supervisor.WorkDir
	sup := supervisor.New(workDir, domainConfigPath(workDir), l, alerter, resolver, cfg.Supervisor.MaxRestarts, restartWindow)

	exitNow, exitCode, err := sup.Start()
	if err != nil {
		l.Error("supervisor failed to start", "error", err.Error())
		os.Exit(1)
	}
	if exitNow {
		os.Exit(exitCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle.RegisterContextCanceller(cancel)
	lifecycle.RegisterReloadHook(sup.Reload)
	lifecycle.RegisterShutdownHook(sup.Shutdown)

	l.Info("afdmon supervisor started", "work_dir", workDir)
	lifecycle.HandleSignals(ctx)
	return nil
}

// domainConfigPath resolves etc/AFD_MON_CONFIG under workDir (§6.1),
// overridable by an AFD_MON_CONFIG environment variable for
// operational flexibility.
func domainConfigPath(workDir string) string {
	if p := os.Getenv(constants.AfdMonConfigName); p != "" {
		return p
	}
	return filepath.Join(workDir, constants.EtcDirName, constants.AfdMonConfigName)
}

// runMonitorWorker implements the re-exec target for component F: it
// attaches to the MSA, resolves its own row by index, and runs the
// monitor loop until the parent supervisor sends SIGINT.
func runMonitorWorker(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("serve --worker monitor requires <work-dir> <index>")
	}
	workDir := args[0]
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[1], err)
	}

	cfg := config.GetConfig()
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), fmt.Sprintf("monitor[%d]", index))
	if err != nil {
		return err
	}

	fifoDir := filepath.Join(workDir, constants.FifoDirName)
	store, err := msa.AttachActive(fifoDir, l)
	if err != nil {
		return err
	}
	defer store.Detach()

	rows := store.Rows()
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("row index %d out of range (%d rows)", index, len(rows))
	}
	row := rows[index]
	entry := rowToEntry(row)

	w := monitor.New(index, entry, store, l)

	stop := make(chan struct{})
	go waitForInterrupt(stop)

	return w.Run(stop)
}

// runLogmuxWorker implements the re-exec target for component G.
func runLogmuxWorker(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("serve --worker logmux requires <work-dir> <index> <log-capabilities>")
	}
	workDir := args[0]
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[1], err)
	}
	capsVal, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid log-capabilities %q: %w", args[2], err)
	}

	cfg := config.GetConfig()
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), fmt.Sprintf("logmux[%d]", index))
	if err != nil {
		return err
	}

	fifoDir := filepath.Join(workDir, constants.FifoDirName)
	store, err := msa.AttachActive(fifoDir, l)
	if err != nil {
		return err
	}
	defer store.Detach()

	rows := store.Rows()
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("row index %d out of range (%d rows)", index, len(rows))
	}
	row := rows[index]

	w := logmux.New(index, row, store, config.GetRlogDir(), afdconfig.Options(capsVal), l)

	stop := make(chan struct{})
	go waitForInterrupt(stop)

	if err := w.Run(stop); err != nil {
		return err
	}
	return nil
}

// rowToEntry reconstructs the config-shaped fields a worker needs from
// its MSA row; a forked worker process never re-reads AFD_MON_CONFIG
// itself, since the supervisor already wrote these fields into the
// row at rebuild time (§4.B step 6).
func rowToEntry(row *msa.Row) *afdconfig.ConfigEntry {
	return &afdconfig.ConfigEntry{
		Alias:   row.Alias,
		Host:    row.Host,
		Port:    row.Port,
		Rcmd:    row.Rcmd,
		Options: row.Options,
		// Poll/connect/disconnect intervals are not carried in the MSA
		// row; workers fall back to the package defaults rather than a
		// second IPC round-trip to the supervisor.
		PollIntervalS:   constants.DefaultPollIntervalS,
		ConnectTimeS:    constants.DefaultConnectTimeS,
		DisconnectTimeS: constants.DefaultDisconnectTimeS,
	}
}

// waitForInterrupt closes stop on SIGINT/SIGTERM, the supervisor's
// broadcast shutdown signal for worker processes (§4.E "On SIGTERM the
// supervisor broadcasts SIGINT to every recorded PID").
func waitForInterrupt(stop chan<- struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(stop)
}
