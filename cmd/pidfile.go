package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePIDFile records the current process's pid, the way the teacher's
// daemon mode tracked its own process for later stop/status calls, minus
// the Unix-socket control channel this repo has no use for.
func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile(path string) {
	_ = os.Remove(path)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s does not contain a valid pid: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether pid refers to a live process, using the
// signal-0 probe idiom (sending signal 0 only checks existence/permission).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
