package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 200000, cfg.Solver.MaxIterations)
	assert.Equal(t, 120*time.Second, cfg.Solver.Timeout)
	assert.True(t, cfg.Solver.StrictSameDay)
	assert.True(t, cfg.Optimizer.Enabled)
	assert.Equal(t, 150, cfg.Optimizer.PopulationSize)
	assert.InDelta(t, 0.8, cfg.Optimizer.CrossoverRate, 1e-9)
	assert.InDelta(t, 1.0,
		cfg.Fitness.StudentIdle+cfg.Fitness.LecturerBalance+cfg.Fitness.RoomUtilization+
			cfg.Fitness.WeekdayDistribution+cfg.Fitness.SlotPreference, 1e-9)
	assert.Nil(t, cfg.TermPlan.Term1Ratios)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SOLVER_MAX_ITERATIONS", "1234")
	t.Setenv("GGA_POPULATION_SIZE", "60")
	t.Setenv("TERM1_RATIOS", "1:0.6,2:0.4,bad,3:2.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1234, cfg.Solver.MaxIterations)
	assert.Equal(t, 60, cfg.Optimizer.PopulationSize)
	assert.Equal(t, map[int]float64{1: 0.6, 2: 0.4}, cfg.TermPlan.Term1Ratios)
}
