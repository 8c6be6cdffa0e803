package topic

// Filter wildcards. Wildcard stands for one topic level, for example every
// vehicle in {root}/telemetry/+. MultiWildcard stands for the rest of the
// topic and must come last.
const (
	Wildcard      = "+"
	MultiWildcard = "#"
)
