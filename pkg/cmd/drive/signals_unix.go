//go:build !windows

package drive

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

// handleSignals maps SIGUSR1 to a mode switch and SIGUSR2 to the debug toggle.
// The returned func stops the handling.
func handleSignals(tr *training.Trainer) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigs:
				switch sig {
				case syscall.SIGUSR1:
					log.Info("mode switch requested")
					tr.RequestModeSwitch()
				case syscall.SIGUSR2:
					log.Info("debug output", log.Bool("enabled", tr.ToggleDebug()))
				}
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
