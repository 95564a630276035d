package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// startXvfb launches an Xvfb virtual display so a headful Chrome (needed to
// pass the email verification step by hand over VNC) can run on a server.
func (p *rodProcess) startXvfb(display string) error {
	if p.xvfb != nil {
		return nil
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	p.xvfb = cmd

	// Give Xvfb a moment to initialise.
	time.Sleep(500 * time.Millisecond)

	p.logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (p *rodProcess) stopXvfb() {
	if p.xvfb == nil {
		return
	}
	if p.xvfb.Process != nil {
		p.xvfb.Process.Kill()
		p.xvfb.Wait()
	}
	p.logger.Info("browser: xvfb stopped")
	p.xvfb = nil
}
