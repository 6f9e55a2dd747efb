package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"potchain/config"
	"potchain/core"
	"potchain/core/era"
	"potchain/core/events"
	"potchain/core/genesis"
	"potchain/core/types"
	"potchain/native/fees"
)

// runtimeConfig translates the node configuration into runtime wiring.
func runtimeConfig(cfg *config.Config, emitter events.Emitter, logger *slog.Logger) (core.RuntimeConfig, error) {
	params, err := cfg.ElectionParams()
	if err != nil {
		return core.RuntimeConfig{}, err
	}
	eraCfg, err := cfg.EraConfig()
	if err != nil {
		return core.RuntimeConfig{}, err
	}
	table, err := cfg.FeeTable()
	if err != nil {
		return core.RuntimeConfig{}, err
	}
	collector, err := cfg.FeeCollector()
	if err != nil {
		return core.RuntimeConfig{}, err
	}
	return core.RuntimeConfig{
		Election:            params,
		MaxVoteNum:          cfg.Election.MaxVoteNum,
		ResetLedgerOnNewEra: cfg.Election.ResetLedgerOnNewEra,
		Era:                 eraCfg,
		Registry:            cfg.RegistryLimits(),
		Fees:                fees.Policy{StrictTokenPolicy: cfg.Fees.StrictTokenPolicy},
		FeeTable:            table,
		FeeCollector:        collector,
		Distributor:         era.LogRewardDistributor{Logger: logger},
		Emitter:             emitter,
		Logger:              logger,
	}, nil
}

// resolveGenesisPath prefers the flag, then the config entry. Relative
// config paths are taken relative to the config file.
func resolveGenesisPath(flagValue, configValue, configFile string) string {
	if path := strings.TrimSpace(flagValue); path != "" {
		return path
	}
	path := strings.TrimSpace(configValue)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configFile), path)
}

// eventLogDSN places relative SQLite databases inside the data directory.
func eventLogDSN(cfg *config.Config) string {
	dsn := strings.TrimSpace(cfg.EventLog.DSN)
	if !strings.EqualFold(strings.TrimSpace(cfg.EventLog.Driver), "sqlite") {
		return dsn
	}
	if dsn == "" || filepath.IsAbs(dsn) || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return filepath.Join(cfg.DataDir, dsn)
}

type genesisTarget interface {
	GenesisApplied() (bool, error)
	ApplyGenesis(spec *genesis.GenesisSpec) error
}

// applyGenesis writes genesis state on first start. A database that already
// holds state keeps it.
func applyGenesis(target genesisTarget, path string, logger *slog.Logger) error {
	applied, err := target.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		logger.Info("genesis already applied, resuming from stored state")
		return nil
	}
	if path == "" {
		logger.Warn("no genesis file configured, starting from config defaults")
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("genesis file: %w", err)
	}
	spec, err := genesis.LoadGenesisSpec(path)
	if err != nil {
		return err
	}
	if err := target.ApplyGenesis(spec); err != nil {
		if errors.Is(err, core.ErrGenesisApplied) {
			return nil
		}
		return err
	}
	logger.Info("genesis applied", "path", path, "seedTrust", len(spec.SeedTrust), "tokens", len(spec.SystemTokens))
	return nil
}

type sessionDriver interface {
	EraStatus() core.EraStatus
	OnNewSession(session uint32) ([]types.AccountID, bool)
	OnSessionStart(session uint32) error
	OnSessionEnd(ctx context.Context, session uint32) error
}

// sessionClock stands in for an external session engine. Each tick ends the
// active session, plans the next one and starts it.
type sessionClock struct {
	driver   sessionDriver
	interval time.Duration
	logger   *slog.Logger
}

func (c *sessionClock) bootstrap() {
	if c.driver.EraStatus().Started {
		return
	}
	if validators, ok := c.driver.OnNewSession(0); ok {
		c.logger.Info("genesis validator set elected", "validators", types.JoinAccounts(validators))
	}
	if err := c.driver.OnSessionStart(0); err != nil {
		c.logger.Error("start session", "session", 0, "error", err)
	}
}

func (c *sessionClock) step(ctx context.Context) {
	status := c.driver.EraStatus()
	current := status.ActiveSession
	if err := c.driver.OnSessionEnd(ctx, current); err != nil {
		c.logger.Warn("end session", "session", current, "error", err)
	}
	next := current + 1
	if validators, ok := c.driver.OnNewSession(next); ok {
		c.logger.Info("validator set rotated", "session", next, "validators", types.JoinAccounts(validators))
	}
	if err := c.driver.OnSessionStart(next); err != nil {
		c.logger.Error("start session", "session", next, "error", err)
	}
}

// Run drives sessions until ctx is cancelled.
func (c *sessionClock) Run(ctx context.Context) {
	c.bootstrap()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.step(ctx)
		}
	}
}
