package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"trade_engine/internal/models"
)

type strategyFile struct {
	Strategies []strategyEntry `mapstructure:"strategies"`
}

type strategyEntry struct {
	ID         string                `mapstructure:"id"`
	Revision   int                   `mapstructure:"revision"`
	Type       string                `mapstructure:"type"`
	Exchange   string                `mapstructure:"exchange"`
	Symbol     string                `mapstructure:"symbol"`
	Timeframe  string                `mapstructure:"timeframe"`
	Parameters map[string]float64    `mapstructure:"parameters"`
	Risk       models.RiskParameters `mapstructure:"risk"`
}

// LoadStrategies reads strategy definitions with viper. Viper folds keys to
// lower case, so parameter names are mapped back to their canonical spelling.
func LoadStrategies(path string) ([]models.StrategyConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read strategies %s", path)
	}
	return decodeStrategies(v)
}

func decodeStrategies(v *viper.Viper) ([]models.StrategyConfig, error) {
	var f strategyFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, errors.Wrap(err, "decode strategies")
	}

	seen := make(map[string]bool, len(f.Strategies))
	out := make([]models.StrategyConfig, 0, len(f.Strategies))
	now := time.Now().UTC()
	for i, e := range f.Strategies {
		if e.ID == "" {
			return nil, &models.ConfigurationError{Field: "strategies[" + strconv.Itoa(i) + "].id", Reason: "required"}
		}
		if e.Revision <= 0 {
			e.Revision = 1
		}
		cfg := models.StrategyConfig{
			ID:         e.ID,
			Revision:   e.Revision,
			Type:       models.StrategyType(strings.ToLower(e.Type)),
			Exchange:   strings.ToLower(e.Exchange),
			Symbol:     strings.ToUpper(e.Symbol),
			Timeframe:  e.Timeframe,
			Parameters: make(map[string]float64, len(e.Parameters)),
			Risk:       e.Risk,
			CreatedAt:  now,
		}
		for k, val := range e.Parameters {
			cfg.Parameters[models.CanonicalParam(k)] = val
		}
		if !cfg.Type.Valid() {
			return nil, &models.ConfigurationError{StrategyID: e.ID, Field: "type", Reason: "unknown strategy type " + e.Type}
		}
		if seen[cfg.Key()] {
			return nil, &models.ConfigurationError{StrategyID: e.ID, Field: "revision", Reason: "duplicate id and revision"}
		}
		seen[cfg.Key()] = true
		out = append(out, cfg)
	}
	return out, nil
}
