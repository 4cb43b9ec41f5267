package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"orangecatalog/pipeline/internal/domain"

	log "github.com/sirupsen/logrus"
)

const (
	LockFileName    = ".pipeline.lock"
	LastRunFileName = "last-run.json"

	// A lock file without a readable pid is treated as held for this long, since its
	// owner may not have written the pid yet.
	UnreadableLockGrace = 30 * time.Second
)

// fileStateManager is used when Redis is disabled: a PID lock file in the output root and
// the last report next to the run reports.
type fileStateManager struct {
	lockPath    string
	lastRunPath string
}

func NewFileStateManager(outputRoot, reportDir string) StateManager {
	return &fileStateManager{
		lockPath:    filepath.Join(outputRoot, LockFileName),
		lastRunPath: filepath.Join(reportDir, LastRunFileName),
	}
}

func (s *fileStateManager) AcquireLock(ctx context.Context, owner string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), owner)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(s.lockPath)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return func() {
				if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
					log.Warnf("⚠️ Failed to remove lock file %s: %v", s.lockPath, err)
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, alive := s.holder()
		if alive {
			if pid == 0 {
				return nil, fmt.Errorf("%w: lock file is still being written", ErrLocked)
			}
			return nil, fmt.Errorf("%w: pid %d", ErrLocked, pid)
		}
		log.Warnf("⚠️ Removing stale lock file left by pid %d", pid)
		if err := os.Remove(s.lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return nil, ErrLocked
}

// holder reports the pid recorded in the lock file and whether that process still exists.
// An unreadable pid counts as held until the file is older than UnreadableLockGrace.
func (s *fileStateManager) holder() (int, bool) {
	data, err := os.ReadFile(s.lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false
		}
		return 0, s.recentlyModified()
	}
	pid, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]))
	if err != nil || pid <= 0 {
		return 0, s.recentlyModified()
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	return pid, process.Signal(syscall.Signal(0)) == nil
}

func (s *fileStateManager) recentlyModified() bool {
	info, err := os.Stat(s.lockPath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < UnreadableLockGrace
}

func (s *fileStateManager) SaveLastRun(ctx context.Context, report *domain.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.lastRunPath), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(s.lastRunPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save last run: %w", err)
	}
	return nil
}

func (s *fileStateManager) LastRun(ctx context.Context) (*domain.RunReport, error) {
	data, err := os.ReadFile(s.lastRunPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}

	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode last run: %w", err)
	}
	return &report, nil
}
