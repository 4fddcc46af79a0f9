package loop

import "strings"

// IterationState tracks the progress and termination signals carried
// across iterations of the staged pipeline.
type IterationState struct {
	ChangedFilesSinceValidation map[string]bool
	ChangedFilesSinceTests      map[string]bool
	SubstantiveEditCount        int
	ConsecutiveDeferrals        int
	NoProgressCount             int
	RecentToolSignatures        []string
	ValidationRuns              int
	TestRuns                    int
	LastReadGeneration          map[string]int
	CurrentGeneration           map[string]int
	FileGenerationBumps         map[string]int
	StagesExecuted              map[Stage]bool

	// LastValidationOk and LastTestOk record the semantic outcome of the
	// most recent validate_web_app / run_unit_tests call.
	// ValidationPassedOnce additionally latches true the first time
	// validate_web_app succeeds, satisfying run_unit_tests's deferral
	// precondition even if a later validation pass regresses.
	LastValidationOk     bool
	ValidationPassedOnce bool
	LastTestOk           bool

	// CompletionSignaled and StopSignaled are set by the completion-prefix
	// / stop-prefix termination checks; the Run loop breaks out as soon as
	// either is true.
	CompletionSignaled bool
	StopSignaled       bool
}

// maxRecentSignatures bounds the rolling tool-signature window used by
// the repeated-signature check.
const maxRecentSignatures = 6

// maxConsecutiveDeferrals and maxTotalDeferralCeiling bound how long
// validate/test stages may be skipped before being forced to run anyway.
const (
	maxConsecutiveDeferrals = 2
	maxTotalDeferralCeiling = 5
)

// maxNoProgressIterations is the termination ceiling on consecutive
// executed stage turns without progress: no successful file write, and
// in the validate stage no dispatched tool call.
const maxNoProgressIterations = 3

// maxRepeatedSignature is the streak at which a (tool, arguments)
// signature repeated back to back is skipped instead of dispatched.
// Reaching it does not end the run.
const maxRepeatedSignature = 3

func newIterationState() *IterationState {
	return &IterationState{
		ChangedFilesSinceValidation: map[string]bool{},
		ChangedFilesSinceTests:      map[string]bool{},
		LastReadGeneration:          map[string]int{},
		CurrentGeneration:           map[string]int{},
		FileGenerationBumps:         map[string]int{},
		StagesExecuted:              map[Stage]bool{},
	}
}

// RecordWrite bumps a file's generation counter and marks it changed for
// both the validation and test deferral trackers.
func (s *IterationState) RecordWrite(rel string) {
	s.CurrentGeneration[rel]++
	s.FileGenerationBumps[rel]++
	s.ChangedFilesSinceValidation[rel] = true
	s.ChangedFilesSinceTests[rel] = true
	s.SubstantiveEditCount++
}

// RecordRead marks rel as read at its current generation, satisfying the
// read-before-write discipline for a subsequent structured edit.
func (s *IterationState) RecordRead(rel string) {
	s.LastReadGeneration[rel] = s.CurrentGeneration[rel]
}

// NeedsReadBeforeWrite reports whether rel has been written (or newly
// created) since it was last read, for tools that mutate existing content
// in place (insert_after_marker, replace_range, append_to_file).
func (s *IterationState) NeedsReadBeforeWrite(rel string) bool {
	return s.LastReadGeneration[rel] < s.CurrentGeneration[rel]
}

// RecordToolSignature appends a canonical (name, args) signature to the
// rolling window used by the repeated-signature check, and
// reports how many times the most recent signature has repeated
// consecutively.
func (s *IterationState) RecordToolSignature(sig string) int {
	s.RecentToolSignatures = append(s.RecentToolSignatures, sig)
	if len(s.RecentToolSignatures) > maxRecentSignatures {
		s.RecentToolSignatures = s.RecentToolSignatures[len(s.RecentToolSignatures)-maxRecentSignatures:]
	}
	streak := 0
	for i := len(s.RecentToolSignatures) - 1; i >= 0; i-- {
		if s.RecentToolSignatures[i] != sig {
			break
		}
		streak++
	}
	return streak
}

// ShouldDeferValidation implements the validate_web_app deferral policy:
// run only once all three core files exist, or at least one change has
// happened since the last validation pass, unless the consecutive- or
// total-deferral ceilings force it to run anyway.
func (s *IterationState) ShouldDeferValidation(coreFilesPresent bool) bool {
	if s.ConsecutiveDeferrals >= maxConsecutiveDeferrals {
		return false
	}
	if s.ValidationRuns >= maxTotalDeferralCeiling {
		return false
	}
	return !coreFilesPresent && len(s.ChangedFilesSinceValidation) == 0
}

// ShouldDeferTests implements the run_unit_tests deferral policy: run only
// after a validation pass has occurred and a real test file has changed,
// mirroring the same deferral ceilings.
func (s *IterationState) ShouldDeferTests(validationRanAtLeastOnce bool, testFileChanged bool) bool {
	if s.ConsecutiveDeferrals >= maxConsecutiveDeferrals {
		return false
	}
	if s.TestRuns >= maxTotalDeferralCeiling {
		return false
	}
	if !validationRanAtLeastOnce {
		return true
	}
	return !testFileChanged
}

// isTestFileName mirrors internal/tools/exec's looksLikeTestFile heuristic
// for the completion-gap and test-deferral checks, which only see file
// names (via FileGenerationBumps/ChangedFilesSinceTests) and never the
// exec package's Tools type.
func isTestFileName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".test.js") || strings.HasSuffix(lower, "tests.js") || strings.Contains(lower, "test")
}

// hasWrittenWhere reports whether any file written this run (tracked by
// FileGenerationBumps) satisfies pred.
func (s *IterationState) hasWrittenWhere(pred func(name string) bool) bool {
	for name := range s.FileGenerationBumps {
		if pred(name) {
			return true
		}
	}
	return false
}

// hasTestFileChangeSinceTests reports whether any file changed since the
// last run_unit_tests call looks like a test file, satisfying
// ShouldDeferTests's testFileChanged argument.
func (s *IterationState) hasTestFileChangeSinceTests() bool {
	for name := range s.ChangedFilesSinceTests {
		if isTestFileName(name) {
			return true
		}
	}
	return false
}

// hasWrittenHTML, hasWrittenCSS, hasWrittenJS, and hasWrittenTestFile back
// the completion-prefix gap checks (spec's "an HTML file created", "a CSS
// file", "a JS file", "a test file").
func (s *IterationState) hasWrittenHTML() bool {
	return s.hasWrittenWhere(func(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".html") })
}

func (s *IterationState) hasWrittenCSS() bool {
	return s.hasWrittenWhere(func(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".css") })
}

func (s *IterationState) hasWrittenJS() bool {
	return s.hasWrittenWhere(func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), ".js") && !isTestFileName(name)
	})
}

func (s *IterationState) hasWrittenTestFile() bool {
	return s.hasWrittenWhere(isTestFileName)
}
