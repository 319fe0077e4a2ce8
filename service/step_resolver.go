package service

import "github.com/adelegard/TouchrServer/model"

// StepRange is the half-open duration window [MinMs, MaxMs) covered by a step.
// MaxMs is nil for the final, open-ended step.
type StepRange struct {
	MinMs int64
	MaxMs *int64
}

// ResolveStepByIndex selects steps[index].
func ResolveStepByIndex(steps []model.Step, index int) (model.Step, bool) {
	if index < 0 || index >= len(steps) {
		return model.Step{}, false
	}
	return steps[index], true
}

// StepRanges lays the steps end to end: each step starts where the previous
// one ended and lasts DurationMs. The last step has no upper bound.
func StepRanges(steps []model.Step) []StepRange {
	ranges := make([]StepRange, len(steps))
	var total int64
	for i, step := range steps {
		ranges[i].MinMs = total
		total += step.DurationMs
		if i != len(steps)-1 {
			maxMs := total
			ranges[i].MaxMs = &maxMs
		}
	}
	return ranges
}

// ResolveStepByDuration finds the step whose range contains durationMs.
func ResolveStepByDuration(steps []model.Step, durationMs int64) (int, model.Step, bool) {
	if durationMs < 0 {
		return -1, model.Step{}, false
	}
	for i, r := range StepRanges(steps) {
		if r.MinMs <= durationMs && (r.MaxMs == nil || durationMs < *r.MaxMs) {
			return i, steps[i], true
		}
	}
	return -1, model.Step{}, false
}
