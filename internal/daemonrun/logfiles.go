package daemonrun

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"golemfacade/internal/config"
	"golemfacade/internal/logging"
)

const (
	logPattern  = "golemfacade-*.log"
	currentLink = "golemfacade.log"
)

// logFiles is the set of per-run log files. Every daemon start writes a new
// timestamped file and repoints golemfacade.log at it.
type logFiles struct {
	dir       string
	main      string
	debug     string
	sessionID string
}

func newLogFiles(logDir string, diagnostic bool, started time.Time) (logFiles, error) {
	stamp := started.UTC().Format("20060102T150405.000Z")
	name := "golemfacade-" + stamp + ".log"
	files := logFiles{dir: logDir, main: filepath.Join(logDir, name)}
	if !diagnostic {
		return files, nil
	}
	debugDir := filepath.Join(logDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		return logFiles{}, fmt.Errorf("create debug log directory: %w", err)
	}
	files.debug = filepath.Join(debugDir, name)
	files.sessionID = uuid.NewString()
	return files, nil
}

// buildLogger wires stdout, the run file and the stream hub, teeing a debug
// JSON file in diagnostic mode. Link failures only warn on stderr because the
// logger is not up yet.
func (f logFiles) buildLogger(cfg *config.Config, opts Options, hub *logging.StreamHub) (*slog.Logger, error) {
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", f.main},
		ErrorOutputPaths: []string{"stderr", f.main},
		Development:      opts.Development,
		Stream:           hub,
		SessionID:        f.sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := pointCurrent(f.dir, f.main); err != nil {
		fmt.Fprintf(os.Stderr, "warn: %s: %v\n", currentLink, err)
	}
	if f.debug == "" {
		return logger, nil
	}

	debugLogger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{f.debug},
		ErrorOutputPaths: []string{f.debug},
		Development:      true,
		SessionID:        f.sessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: debug logger disabled: %v\n", err)
		return logger, nil
	}
	logger = logging.TeeLogger(logger, debugLogger.Handler())
	if err := pointCurrent(filepath.Dir(f.debug), f.debug); err != nil {
		fmt.Fprintf(os.Stderr, "warn: debug/%s: %v\n", currentLink, err)
	}
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", f.debug),
	)
	return logger, nil
}

// prune removes run files past the retention window, sparing this run's.
func (f logFiles) prune(logger *slog.Logger, retentionDays int, now time.Time) int {
	return logging.PruneLogs(logger, retentionDays, now,
		logging.PruneTarget{Dir: f.dir, Pattern: logPattern, Keep: []string{f.main}},
		logging.PruneTarget{Dir: filepath.Join(f.dir, "debug"), Pattern: logPattern, Keep: []string{f.debug}},
	)
}

// pointCurrent makes dir/golemfacade.log refer to target, falling back to a
// hard link where symlinks are not supported.
func pointCurrent(dir, target string) error {
	if dir == "" || target == "" {
		return nil
	}
	link := filepath.Join(dir, currentLink)
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale link: %w", err)
	}
	if os.Symlink(target, link) == nil {
		return nil
	}
	if err := os.Link(target, link); err != nil {
		return fmt.Errorf("link current log: %w", err)
	}
	return nil
}
