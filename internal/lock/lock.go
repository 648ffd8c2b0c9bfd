// Package lock keeps a profile to one running process.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside the profile directory.
const FileName = "LOCK"

// LockHeldError is returned when another process holds the profile lock.
type LockHeldError struct {
	PID     int
	Program string
	Path    string
}

func (e *LockHeldError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("profile in use by %s (PID %d, %s)", e.Program, e.PID, e.Path)
	}
	return fmt.Sprintf("profile lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired profile lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on dir/LOCK and records the owner's PID
// and program name in it. It returns *LockHeldError if another process
// holds the lock.
func Acquire(dir, program string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		held := &LockHeldError{Path: path}
		if data, readErr := os.ReadFile(path); readErr == nil {
			held.PID, held.Program = parseOwner(string(data))
		}
		return nil, held
	}

	owner := fmt.Sprintf("pid=%d\nprogram=%s\ntime=%s\n", os.Getpid(), program, time.Now().UTC().Format(time.RFC3339))
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(owner), 0); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release releases the lock. Safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parseOwner(content string) (pid int, program string) {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid, _ = strconv.Atoi(value)
		case "program":
			program = value
		}
	}
	return pid, program
}
