package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
)

// OSController performs real process control on the host.
type OSController struct{}

// NewOSController creates the host-backed controller.
func NewOSController() *OSController {
	return &OSController{}
}

// Terminate sends SIGTERM.
func (c *OSController) Terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (c *OSController) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGKILL)
}

// Alive reports whether the process still exists.
func (c *OSController) Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Launch starts a worker via its configured command, redirecting output
// to the per-instance log file. The child is detached: it outlives the
// supervisor process.
func (c *OSController) Launch(role domain.WorkerRole, command []string, logPath string) (int, error) {
	if len(command) == 0 {
		return 0, fmt.Errorf("no start command configured for role %s", role)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("failed to start %s: %w", command[0], err)
	}
	_ = logFile.Close()

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		_ = cmd.Wait()
	}()

	return cmd.Process.Pid, nil
}

// logFilePath builds logs/<role>_<timestamp>.log under the log dir.
func logFilePath(dir string, role domain.WorkerRole, now time.Time) string {
	if dir == "" {
		dir = "logs"
	}
	name := fmt.Sprintf("%s_%s.log", role, now.Format("20060102_150405"))
	return filepath.Join(dir, name)
}
