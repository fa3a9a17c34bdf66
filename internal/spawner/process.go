package spawner

import (
	"os/exec"
)

// Process is a handle to a launched room server process.
type Process interface {
	Pid() int
	// Kill terminates the process. Safe to call after exit.
	Kill() error
	// Wait blocks until the process exits.
	Wait() error
}

// Launcher starts room server processes. The OS mechanism is abstracted so
// tests can substitute a fake and observe the spawn lifecycle without
// executables.
type Launcher interface {
	Launch(path string, args []string) (Process, error)
}

// NewExecLauncher returns the os/exec backed Launcher used in production.
func NewExecLauncher() Launcher {
	return execLauncher{}
}

type execLauncher struct{}

func (execLauncher) Launch(path string, args []string) (Process, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}
