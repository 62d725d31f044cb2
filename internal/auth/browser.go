package auth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openBrowser launches the system browser at the given URL. Callers fall
// back to printing the URL when this fails, so headless environments can
// still complete the flow manually.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	return nil
}
