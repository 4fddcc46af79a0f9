// Package devicedetect resolves the configured "auto" inference device to
// a concrete backend by probing the host for an NVIDIA GPU or Apple Silicon.
package devicedetect

import (
	"os/exec"
	"runtime"
)

// Resolve turns "auto" into "cuda", "mps", or "cpu". Any other value
// passes through unchanged.
func Resolve(requested string) string {
	if requested != "auto" {
		return requested
	}
	if hasNvidiaSMI() {
		return "cuda"
	}
	if isAppleSilicon() {
		return "mps"
	}
	return "cpu"
}

var lookPath = exec.LookPath

func hasNvidiaSMI() bool {
	_, err := lookPath("nvidia-smi")
	return err == nil
}

func isAppleSilicon() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
