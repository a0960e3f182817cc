package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/tallyho-dev/tallyho/internal/classify"
	"github.com/tallyho-dev/tallyho/internal/common"
	"github.com/tallyho-dev/tallyho/internal/engine"
	"github.com/tallyho-dev/tallyho/internal/match"
)

// DefaultDatabasePath is used when no database path is configured.
const DefaultDatabasePath = "$HOME/.local/share/tallyho/tallyho.db"

// DatabasePath resolves the configured database path.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = DefaultDatabasePath
	}
	return ExpandPath(path)
}

// EngineConfig assembles the engine configuration from viper, layering any
// configured per-rail tolerance overrides on top of the built-in defaults.
func EngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()

	if v := viper.GetInt("engine.page_size"); v > 0 {
		cfg.PageSize = v
	}
	if v := viper.GetInt("engine.max_pages"); v > 0 {
		cfg.MaxPages = v
	}
	if v := viper.GetInt("engine.workers"); v > 0 {
		cfg.Workers = v
	}
	if v := viper.GetInt("engine.sample_limit"); v > 0 {
		cfg.SampleLimit = v
	}

	tolerances, err := toleranceTable()
	if err != nil {
		return engine.Config{}, err
	}
	cfg.Tolerances = tolerances

	cfg.Fallback = classify.Config{
		EntityMarkers:    viper.GetStringSlice("classify.entity_markers"),
		GatewayNames:     viper.GetStringSlice("classify.gateway_names"),
		IntercompanyCode: viper.GetString("classify.intercompany_code"),
		CatchAllIncome:   viper.GetString("classify.catch_all_income"),
		CatchAllExpense:  viper.GetString("classify.catch_all_expense"),
	}

	return cfg, nil
}

// toleranceTable reads per-rail overrides from the "tolerances" config
// section. Rails not mentioned keep their defaults; within a mentioned rail,
// zero-valued fields keep their defaults too.
func toleranceTable() (match.ToleranceTable, error) {
	table := match.DefaultTolerances()

	raw := viper.GetStringMap("tolerances")
	for railName := range raw {
		rail := match.Rail(railName)
		tol := table.For(rail)
		prefix := "tolerances." + railName + "."

		if v := viper.GetFloat64(prefix + "amount_percent"); v > 0 {
			tol.AmountPercent = v
		}
		if v := viper.GetString(prefix + "amount_absolute"); v != "" {
			abs, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("%w: tolerances.%s.amount_absolute: %v", common.ErrInvalidConfig, railName, err)
			}
			tol.AmountAbsolute = abs
		}
		if v := viper.GetInt(prefix + "date_window_days"); v > 0 {
			tol.DateWindowDays = v
		}
		if v := viper.GetInt(prefix + "narrow_window_days"); v > 0 {
			tol.NarrowWindowDays = v
		}
		if v := viper.GetInt(prefix + "disburse_window_days"); v > 0 {
			tol.DisburseWindowDays = v
		}
		if v := viper.GetInt(prefix + "sum_lookback_days"); v > 0 {
			tol.SumLookbackDays = v
		}

		table[rail] = tol
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	return table, nil
}
