package main

import "testing"

func TestBuildRootCmdRegistersSubcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["serve"] {
		t.Fatalf("expected serve subcommand to be registered")
	}
	if !names["tools-serve"] {
		t.Fatalf("expected tools-serve subcommand to be registered")
	}
}

func TestRunDirectRequiresWorkspaceAndTask(t *testing.T) {
	flags.workspaceRoot = ""
	flags.task = ""
	root := buildRootCmd()
	if err := runDirect(root, nil); err == nil {
		t.Fatalf("expected error when workspace-root and task are unset")
	}
}
