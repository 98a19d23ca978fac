package webhook

// FilterEvaluator decides whether an endpoint's filter document matches an
// event. Filter semantics are an extension point; the default evaluator
// passes everything, so filters are advisory until a richer evaluator is
// installed.
type FilterEvaluator interface {
	Match(filters map[string]any, evt *Event) bool
}

// PassAllFilter is the default evaluator: every event matches.
type PassAllFilter struct{}

func (PassAllFilter) Match(map[string]any, *Event) bool { return true }
