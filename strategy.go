package rhi

// Strategy is how a buffer is translated.
type Strategy uint8

const (
	// StrategySerial replays the buffer inside its dispatch-pipe unit.
	StrategySerial Strategy = iota
	// StrategyParallel replays the buffer on the translate pool as soon as
	// it is submitted, possibly split into several tasks.
	StrategyParallel
)

func (s Strategy) String() string {
	if s == StrategyParallel {
		return "parallel"
	}
	return "serial"
}

// Policy is the executor-wide input to strategy selection.
type Policy struct {
	AllowParallel bool
	MinCommands   int
}

// BufferFacts is the per-buffer input to strategy selection.
type BufferFacts struct {
	Immediate  bool
	LockFenced bool
	Commands   int
}

// SelectStrategy decides how a buffer is translated. Lock-fenced buffers and
// the immediate buffer are never offered the parallel path.
func SelectStrategy(p Policy, f BufferFacts) Strategy {
	switch {
	case !p.AllowParallel:
		return StrategySerial
	case f.Immediate:
		return StrategySerial
	case f.LockFenced:
		return StrategySerial
	case f.Commands == 0 || f.Commands < p.MinCommands:
		return StrategySerial
	default:
		return StrategyParallel
	}
}
