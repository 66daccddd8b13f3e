package lifecycle

import "context"

// Phase orders shutdown hooks. State hooks flush container data while the
// stores behind them are still reachable; connection hooks then close the
// stores themselves.
type Phase int

const (
	PhaseState Phase = iota
	PhaseConnections
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Phase Phase
	Fn    func(ctx context.Context) error
}
