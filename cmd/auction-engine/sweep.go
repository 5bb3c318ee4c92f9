package main

import (
	"context"
	"fmt"

	"auction-engine/internal/config"

	"github.com/rs/zerolog/log"
)

// runSweep performs a single lifecycle pass, for deployments that drive the
// clock from an external scheduler instead of the in-process sweeper.
func runSweep(parent context.Context, cfg *config.Config) error {
	e, err := newEngine(parent, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.auctions.Sweep(parent)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	log.Info().
		Int("due", report.Due).
		Int("started", report.Started).
		Int("ended", report.Ended).
		Int("conflicts", report.Conflicts).
		Int("failed", report.Failed).
		Msg("Sweep completed")
	return nil
}
