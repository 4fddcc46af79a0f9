package devicedetect

import (
	"errors"
	"testing"
)

func TestResolvePassesThroughExplicitDevice(t *testing.T) {
	for _, d := range []string{"cuda", "mps", "cpu"} {
		if got := Resolve(d); got != d {
			t.Fatalf("Resolve(%q) = %q, want unchanged", d, got)
		}
	}
}

func TestResolveAutoFallsBackToCPUWithoutNvidiaSMI(t *testing.T) {
	old := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	defer func() { lookPath = old }()

	got := Resolve("auto")
	if got != "cpu" && got != "mps" {
		t.Fatalf("Resolve(auto) = %q, want cpu or mps", got)
	}
}

func TestResolveAutoPrefersCudaWhenNvidiaSMIPresent(t *testing.T) {
	old := lookPath
	lookPath = func(string) (string, error) { return "/usr/bin/nvidia-smi", nil }
	defer func() { lookPath = old }()

	if got := Resolve("auto"); got != "cuda" {
		t.Fatalf("Resolve(auto) = %q, want cuda", got)
	}
}
