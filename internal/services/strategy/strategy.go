// Package strategy holds the built-in trading strategies. Each one
// reads cached market views and emits signals; order execution and
// risk limits live with the caller.
package strategy

import (
	"fmt"
	"time"

	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
)

const (
	// DefaultInterval is the analysis cadence for most strategies.
	DefaultInterval = 60 * time.Second
	// ScalpingInterval reacts to short-lived oversold and overbought moves.
	ScalpingInterval = 10 * time.Second
	// DCAInterval spaces out recurring buys.
	DCAInterval = time.Hour
)

// Names lists every built-in strategy.
func Names() []string {
	return []string{"momentum", "scalping", "swing", "dca"}
}

// DefaultSymbols returns the symbols a strategy trades when the caller
// does not narrow the universe.
func DefaultSymbols(name string) []string {
	switch name {
	case "scalping", "dca":
		return []string{"BTC", "ETH"}
	default:
		return []string{"BTC", "ETH", "XRP"}
	}
}

// New builds a strategy by name.
func New(name string) (domsvc.Strategy, error) {
	switch name {
	case "momentum":
		return NewMomentum(), nil
	case "scalping":
		return NewScalping(), nil
	case "swing":
		return NewSwing(), nil
	case "dca":
		return NewDCA(), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}
