package model

// Strategy is the content-generation mode used for a cycle's post step.
type Strategy string

const (
	StrategyQuestion            Strategy = "question"
	StrategyHotTake             Strategy = "hot_take"
	StrategyThread              Strategy = "thread"
	StrategyNumberedObservation Strategy = "numbered_observation"
	StrategyRegularThought      Strategy = "regular_thought"
)

func (s Strategy) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyQuestion, StrategyHotTake, StrategyThread, StrategyNumberedObservation, StrategyRegularThought:
		return true
	}
	return false
}
