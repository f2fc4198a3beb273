package executor

import (
	"fmt"
	"strings"
)

// Strategy selects how a graph is walked
type Strategy string

const (
	// Sequential runs one binding at a time in topological order
	Sequential Strategy = "sequential"
	// Parallel runs each level on a bounded worker pool with a barrier between levels
	Parallel Strategy = "parallel"
	// Cooperative starts each binding as soon as its dependencies have committed
	Cooperative Strategy = "cooperative"
)

// DefaultStrategy is used when nothing else is configured
const DefaultStrategy = Sequential

// Strategies lists every supported strategy
var Strategies = []Strategy{Sequential, Parallel, Cooperative}

// ParseStrategy accepts a strategy name case-insensitively. The empty string
// selects DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultStrategy, nil
	}
	for _, st := range Strategies {
		if string(st) == name {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown execution strategy '%s'", s)
}

func (s Strategy) String() string {
	return string(s)
}
