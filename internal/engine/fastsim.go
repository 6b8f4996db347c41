package engine

import (
	log "github.com/sirupsen/logrus"
)

// FastSim runs the same loop as Simulation over a calendar computed once at
// setup and skips the per-tick data checks. On malformed input it silently
// trades on the last row available for an asset, so it is only safe on data
// a Simulation run has accepted.
type FastSim struct {
	driver
}

func NewFastSim(broker *Broker, cfg *SimulationConfig) *FastSim {
	log.WithField("guide", cfg.guide).Debug("fast simulation does not validate market data")
	return &FastSim{driver{broker: broker, cfg: cfg}}
}
