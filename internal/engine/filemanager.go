package engine

import (
	"os/exec"
	"runtime"

	"hitomidl/internal/domain"
)

// openInFileManager shells out to the host desktop's file manager to
// reveal path. There is no retrievable-pack library for this; every
// platform's "reveal in Finder/Explorer/file manager" call is a thin,
// OS-specific external-process invocation rather than a library concern.
func openInFileManager(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return domain.NewIOError("could not open file manager", err)
	}
	return nil
}
