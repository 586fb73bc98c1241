package database

import (
	"fmt"
	"path/filepath"
)

// Warehouse bundles the four databases the engine operates on.
//
//   - facts.db       append-only source facts (contracts, snapshots, usage, predictions)
//   - assumptions.db versioned business assumptions (baselines, stage probabilities, ...)
//   - forecast.db    derived forecast tables, dropped and rebuilt every run
//   - models.db      backtest metrics, calibration reports and champion selection
type Warehouse struct {
	Facts       *DB
	Assumptions *DB
	Forecast    *DB
	Models      *DB
}

// OpenWarehouse opens all warehouse databases under dataDir.
func OpenWarehouse(dataDir string) (*Warehouse, error) {
	facts, err := New(Config{Path: filepath.Join(dataDir, "facts.db"), Profile: ProfileFacts, Name: "facts"})
	if err != nil {
		return nil, fmt.Errorf("open facts: %w", err)
	}
	assumptions, err := New(Config{Path: filepath.Join(dataDir, "assumptions.db"), Profile: ProfileDerived, Name: "assumptions"})
	if err != nil {
		return nil, fmt.Errorf("open assumptions: %w", err)
	}
	forecast, err := New(Config{Path: filepath.Join(dataDir, "forecast.db"), Profile: ProfileDerived, Name: "forecast"})
	if err != nil {
		return nil, fmt.Errorf("open forecast: %w", err)
	}
	models, err := New(Config{Path: filepath.Join(dataDir, "models.db"), Profile: ProfileDerived, Name: "models"})
	if err != nil {
		return nil, fmt.Errorf("open models: %w", err)
	}

	return &Warehouse{
		Facts:       facts,
		Assumptions: assumptions,
		Forecast:    forecast,
		Models:      models,
	}, nil
}

// OpenTestWarehouse opens an isolated in-memory warehouse. Each database gets
// its own shared-cache URI so repositories see the same tables within a test.
func OpenTestWarehouse(id string) (*Warehouse, error) {
	open := func(name string) (*DB, error) {
		uri := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", id, name)
		return New(Config{Path: uri, Profile: ProfileDerived, Name: name})
	}
	facts, err := open("facts")
	if err != nil {
		return nil, err
	}
	assumptions, err := open("assumptions")
	if err != nil {
		return nil, err
	}
	forecast, err := open("forecast")
	if err != nil {
		return nil, err
	}
	models, err := open("models")
	if err != nil {
		return nil, err
	}
	return &Warehouse{Facts: facts, Assumptions: assumptions, Forecast: forecast, Models: models}, nil
}

// Close closes all databases, returning the first error encountered.
func (w *Warehouse) Close() error {
	var first error
	for _, db := range []*DB{w.Facts, w.Assumptions, w.Forecast, w.Models} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
