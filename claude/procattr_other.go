//go:build !unix

package claude

import "os/exec"

// isolateProcessGroup keeps exec's default cancellation (Process.Kill) on
// platforms without POSIX process groups.
func isolateProcessGroup(cmd *exec.Cmd) {}
