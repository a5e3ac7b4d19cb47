package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config carries every runtime knob of the scheduler.
type Config struct {
	Env string

	Log       LogConfig
	Solver    SolverConfig
	Optimizer OptimizerConfig
	Fitness   FitnessWeights
	TermPlan  TermPlanConfig
	Export    ExportConfig
}

// LogConfig tunes the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig bounds the CSP search.
type SolverConfig struct {
	MaxIterations  int
	Timeout        time.Duration
	StallThreshold int
	Seed           int64
	// StrictSameDay keeps the no-same-day-course-repeat rule strict; when
	// false, consecutive-period lab sessions of a unit are excused.
	StrictSameDay bool
}

// OptimizerConfig bounds the genetic optimisation phase.
type OptimizerConfig struct {
	Enabled          bool
	PopulationSize   int
	MaxGenerations   int
	EliteSize        int
	CrossoverRate    float64
	MutationRate     float64
	TargetFitness    float64
	StallLimit       int
	MaxAge           int
	MutationAttempts int
}

// FitnessWeights distributes the soft-score emphasis.
type FitnessWeights struct {
	StudentIdle         float64
	LecturerBalance     float64
	RoomUtilization     float64
	WeekdayDistribution float64
	SlotPreference      float64
}

// TermPlanConfig tunes term splitting.
type TermPlanConfig struct {
	// Term1Ratios maps a semester to its Term 1 unit share. Unlisted
	// semesters split half-half.
	Term1Ratios map[int]float64
}

// ExportConfig controls artefact output.
type ExportConfig struct {
	Dir string
	PDF bool
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.Env = v.GetString("ENV")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		MaxIterations:  v.GetInt("SOLVER_MAX_ITERATIONS"),
		Timeout:        parseDuration(v.GetString("SOLVER_TIMEOUT"), 120*time.Second),
		StallThreshold: v.GetInt("SOLVER_STALL_THRESHOLD"),
		Seed:           v.GetInt64("SOLVER_SEED"),
		StrictSameDay:  v.GetBool("SOLVER_STRICT_SAME_DAY"),
	}

	cfg.Optimizer = OptimizerConfig{
		Enabled:          v.GetBool("GGA_ENABLED"),
		PopulationSize:   v.GetInt("GGA_POPULATION_SIZE"),
		MaxGenerations:   v.GetInt("GGA_MAX_GENERATIONS"),
		EliteSize:        v.GetInt("GGA_ELITE_SIZE"),
		CrossoverRate:    v.GetFloat64("GGA_CROSSOVER_RATE"),
		MutationRate:     v.GetFloat64("GGA_MUTATION_RATE"),
		TargetFitness:    v.GetFloat64("GGA_TARGET_FITNESS"),
		StallLimit:       v.GetInt("GGA_STALL_LIMIT"),
		MaxAge:           v.GetInt("GGA_MAX_AGE"),
		MutationAttempts: v.GetInt("GGA_MUTATION_ATTEMPTS"),
	}

	cfg.Fitness = FitnessWeights{
		StudentIdle:         v.GetFloat64("FITNESS_STUDENT_IDLE"),
		LecturerBalance:     v.GetFloat64("FITNESS_LECTURER_BALANCE"),
		RoomUtilization:     v.GetFloat64("FITNESS_ROOM_UTILIZATION"),
		WeekdayDistribution: v.GetFloat64("FITNESS_WEEKDAY_DISTRIBUTION"),
		SlotPreference:      v.GetFloat64("FITNESS_SLOT_PREFERENCE"),
	}

	cfg.TermPlan = TermPlanConfig{Term1Ratios: parseRatios(v.GetString("TERM1_RATIOS"))}

	cfg.Export = ExportConfig{
		Dir: v.GetString("EXPORT_DIR"),
		PDF: v.GetBool("EXPORT_PDF"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SOLVER_MAX_ITERATIONS", 200000)
	v.SetDefault("SOLVER_TIMEOUT", "120s")
	v.SetDefault("SOLVER_STALL_THRESHOLD", 5000)
	v.SetDefault("SOLVER_SEED", 0)
	v.SetDefault("SOLVER_STRICT_SAME_DAY", true)

	v.SetDefault("GGA_ENABLED", true)
	v.SetDefault("GGA_POPULATION_SIZE", 150)
	v.SetDefault("GGA_MAX_GENERATIONS", 300)
	v.SetDefault("GGA_ELITE_SIZE", 10)
	v.SetDefault("GGA_CROSSOVER_RATE", 0.8)
	v.SetDefault("GGA_MUTATION_RATE", 0.15)
	v.SetDefault("GGA_TARGET_FITNESS", 0.95)
	v.SetDefault("GGA_STALL_LIMIT", 60)
	v.SetDefault("GGA_MAX_AGE", 50)
	v.SetDefault("GGA_MUTATION_ATTEMPTS", 5)

	v.SetDefault("FITNESS_STUDENT_IDLE", 0.27)
	v.SetDefault("FITNESS_LECTURER_BALANCE", 0.22)
	v.SetDefault("FITNESS_ROOM_UTILIZATION", 0.14)
	v.SetDefault("FITNESS_WEEKDAY_DISTRIBUTION", 0.27)
	v.SetDefault("FITNESS_SLOT_PREFERENCE", 0.10)

	v.SetDefault("TERM1_RATIOS", "")

	v.SetDefault("EXPORT_DIR", ".")
	v.SetDefault("EXPORT_PDF", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

// parseRatios reads "semester:ratio" pairs, e.g. "1:0.5,2:0.6".
func parseRatios(raw string) map[int]float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[int]float64)
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			continue
		}
		semester, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			continue
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil || ratio <= 0 || ratio >= 1 {
			continue
		}
		out[semester] = ratio
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
