// Package lifecycle implements the Signal & Lifecycle component
// (spec.md §4.8/§5/§7): single-instance enforcement, the PID file, and
// orderly shutdown on SIGINT/SIGTERM/SIGHUP.
package lifecycle

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/npresenced/npresenced/internal/config"
)

// ErrAlreadyRunning is returned by AcquireLock when another instance holds
// the advisory lock (spec.md §6 exit code 3).
var ErrAlreadyRunning = fmt.Errorf("another instance is already running")

// Lock is the single-instance advisory lock plus the PID file it guards.
type Lock struct {
	fd      int
	pidPath string
}

// AcquireLock takes a non-blocking exclusive flock on a dedicated lock
// file, grounded on the one-shot (no retry loop) contract spec.md §5
// describes: a single failed attempt is fatal, not a wait.
func AcquireLock(lockPath, pidPath string) (*Lock, error) {
	fd, err := syscall.Open(lockPath, syscall.O_CREAT|syscall.O_RDWR|syscall.O_CLOEXEC, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		syscall.Close(fd)
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}

	l := &Lock{fd: fd, pidPath: pidPath}
	if pidPath != "" {
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
			l.Release()
			return nil, fmt.Errorf("writing pid file %s: %w", pidPath, err)
		}
	}
	return l, nil
}

// Release removes the PID file and drops the lock.
func (l *Lock) Release() {
	if l.pidPath != "" {
		os.Remove(l.pidPath)
	}
	syscall.Flock(l.fd, syscall.LOCK_UN)
	syscall.Close(l.fd)
}

// DefaultLockPath and DefaultPIDPath follow spec.md §7's "/var/run/<daemon>.pid".
func DefaultLockPath() string {
	return "/var/run/" + config.DaemonName + ".lock"
}

func DefaultPIDPath() string {
	return "/var/run/" + config.DaemonName + ".pid"
}

// WaitForShutdown blocks until SIGINT, SIGTERM, or SIGHUP arrives, then
// returns. SIGPIPE is explicitly ignored: broken session sockets are
// surfaced as write errors to the Dispatcher, not as process death.
func WaitForShutdown() os.Signal {
	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return <-sigCh
}
