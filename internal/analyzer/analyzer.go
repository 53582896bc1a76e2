// Package analyzer implements the Output Analyzer (spec §4.5): a pure
// function from captured terminal output plus iteration state to an
// AnalysisResult. It holds no state of its own and makes no I/O calls,
// mirroring the teacher's stateless handler functions in
// src/handler/process/service.go.
package analyzer

import (
	"regexp"
	"strings"
)

// Conclusion is the classifier's verdict about the agent's current state.
type Conclusion string

const (
	ConclusionComplete     Conclusion = "COMPLETE"
	ConclusionStuckOrError Conclusion = "STUCK_OR_ERROR"
	ConclusionWaitingInput Conclusion = "WAITING_INPUT"
	ConclusionIncomplete   Conclusion = "INCOMPLETE"
	ConclusionUnknown      Conclusion = "UNKNOWN"
)

// Recommendation is the action the Continuation Engine should dispatch on.
type Recommendation string

const (
	RecommendInjectPrompt   Recommendation = "inject_prompt"
	RecommendAssignNext     Recommendation = "assign_next_task"
	RecommendRetryWithHints Recommendation = "retry_with_hints"
	RecommendNotifyOwner    Recommendation = "notify_owner"
	RecommendPauseAgent     Recommendation = "pause_agent"
	RecommendNoAction       Recommendation = "no_action"
)

// AnalysisResult is the Output Analyzer's verdict (spec §3 AnalysisResult).
type AnalysisResult struct {
	Conclusion     Conclusion
	Confidence     float64
	Evidence       string
	Recommendation Recommendation
	Iterations     uint64
	MaxIterations  uint64
}

// Input bundles everything the classifier needs to reach a verdict.
type Input struct {
	RecentOutput  string
	Iterations    uint64
	MaxIterations uint64
}

var (
	completionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btask\s+complete\b`),
		// The literal function-call marker the continuation prompt tells
		// the agent to call (spec §4.6 Prompt Templates); word order is
		// reversed from "task complete" and joined by an underscore, so it
		// needs its own pattern rather than reusing the one above.
		regexp.MustCompile(`(?i)\bcomplete_task\b`),
		regexp.MustCompile(`(?i)\ball\s+tests?\s+pass(ed|ing)?\b`),
		regexp.MustCompile(`(?i)\bdone[.!]?\s*$`),
		regexp.MustCompile(`(?i)\bfinished\b.*\btask\b`),
	}

	errorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpanic:`),
		regexp.MustCompile(`(?i)\bfatal(\s+error)?:`),
		regexp.MustCompile(`(?i)\btraceback\s+\(most recent call last\)`),
		regexp.MustCompile(`(?i)\bcommand not found\b`),
		regexp.MustCompile(`(?i)\bpermission denied\b`),
		regexp.MustCompile(`(?i)\berror:\s`),
	}

	waitingInputPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\(y/n\)\s*$`),
		regexp.MustCompile(`(?i)\[y/n\]\s*$`),
		regexp.MustCompile(`(?i)do you want to proceed\?\s*$`),
		regexp.MustCompile(`(?i)continue\?\s*$`),
		regexp.MustCompile(`(?i)please confirm\b`),
		// Generic trailing question mark: the catch-all for prompts that
		// aren't y/n or one of the phrases above (spec §4.5).
		regexp.MustCompile(`\?\s*$`),
		regexp.MustCompile(`>\s*$`),
	}

	stuckRepeatPattern = regexp.MustCompile(`(?i)\bretry(ing)?\b`)
)

// Analyze classifies the captured output per spec §4.5's ordered rules:
// COMPLETE -> STUCK_OR_ERROR -> WAITING_INPUT -> cap-triggered notify_owner
// -> INCOMPLETE -> UNKNOWN. The first matching rule wins.
func Analyze(in Input) AnalysisResult {
	out := strings.TrimRight(in.RecentOutput, "\n\r\t ")
	tail := lastLines(out, 20)

	base := AnalysisResult{
		Iterations:    in.Iterations,
		MaxIterations: in.MaxIterations,
	}

	if out == "" {
		base.Conclusion = ConclusionUnknown
		base.Confidence = 0.1
		base.Evidence = "no output captured"
		base.Recommendation = RecommendNoAction
		return base
	}

	if m := firstMatch(completionPatterns, tail); m != "" {
		base.Conclusion = ConclusionComplete
		base.Confidence = 0.9
		base.Evidence = m
		base.Recommendation = RecommendAssignNext
		return base
	}

	if m := firstMatch(errorPatterns, tail); m != "" {
		base.Conclusion = ConclusionStuckOrError
		base.Confidence = 0.85
		base.Evidence = m
		if in.MaxIterations > 0 && in.Iterations >= in.MaxIterations {
			base.Recommendation = RecommendNotifyOwner
		} else {
			base.Recommendation = RecommendRetryWithHints
		}
		return base
	}

	if m := firstMatch(waitingInputPatterns, tail); m != "" {
		base.Conclusion = ConclusionWaitingInput
		base.Confidence = 0.8
		base.Evidence = m
		base.Recommendation = RecommendInjectPrompt
		return base
	}

	// Cap check: regardless of how ambiguous the output is, reaching
	// maxIterations always forces a notify_owner (spec §8 invariant).
	if in.MaxIterations > 0 && in.Iterations >= in.MaxIterations {
		base.Conclusion = ConclusionIncomplete
		base.Confidence = 0.7
		base.Evidence = "iteration cap reached"
		base.Recommendation = RecommendNotifyOwner
		return base
	}

	if stuckRepeatPattern.MatchString(tail) {
		base.Conclusion = ConclusionIncomplete
		base.Confidence = 0.5
		base.Evidence = "retry language detected, no completion signal"
		base.Recommendation = RecommendRetryWithHints
		return base
	}

	if looksActive(tail) {
		base.Conclusion = ConclusionIncomplete
		base.Confidence = 0.55
		base.Evidence = "output present, no terminal signal yet"
		base.Recommendation = RecommendNoAction
		return base
	}

	base.Conclusion = ConclusionUnknown
	base.Confidence = 0.3
	base.Evidence = "no recognizable pattern in recent output"
	base.Recommendation = RecommendPauseAgent
	return base
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if loc := p.FindString(text); loc != "" {
			return loc
		}
	}
	return ""
}

// looksActive is a weak positive signal: more than a couple of non-blank
// lines suggests the agent is still producing output rather than idling
// on a truly empty prompt.
func looksActive(text string) bool {
	lines := strings.Split(text, "\n")
	nonBlank := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonBlank++
		}
	}
	return nonBlank >= 2
}

// lastLines returns the trailing n lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
