package loop

import "testing"

func TestIsAllowed(t *testing.T) {
	cases := []struct {
		stage Stage
		name  string
		want  bool
	}{
		{StagePlan, "plan_web_build", true},
		{StagePlan, "create_file", false},
		{StageCode, "create_file", true},
		{StageValidate, "run_unit_tests", true},
		{StageValidate, "create_file", false},
	}
	for _, c := range cases {
		if got := IsAllowed(c.stage, c.name); got != c.want {
			t.Errorf("IsAllowed(%s, %s) = %v, want %v", c.stage, c.name, got, c.want)
		}
	}
}

func TestToolsForStagePreservesCatalogOrder(t *testing.T) {
	catalog := []string{"sandbox_echo_path", "create_file", "plan_web_build", "read_file"}
	got := ToolsForStage(StagePlan, catalog)
	want := []string{"sandbox_echo_path", "plan_web_build", "read_file"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
