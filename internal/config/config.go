package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"

	"github.com/copyleftdev/ipoptgo/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		// SolveTimeout bounds synchronous solves and async jobs alike.
		SolveTimeout time.Duration `env:"HTTP_SOLVE_TIMEOUT" envDefault:"5m"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		PrintLevel     int      `env:"SOLVER_PRINT_LEVEL" envDefault:"0"`
		MaxIter        int      `env:"SOLVER_MAX_ITER" envDefault:"0"`
		Tol            float64  `env:"SOLVER_TOL" envDefault:"0"`
		GradientScheme string   `env:"SOLVER_GRADIENT_SCHEME" envDefault:"3-point"`
		FDStep         float64  `env:"SOLVER_FD_STEP" envDefault:"0"`
		Options        []string `env:"SOLVER_OPTIONS" envSeparator:";"`
	}
	Optimization struct {
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"1"`
	}
	Metrics struct {
		Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.Optimization.WorkerCount < 1 {
		return fmt.Errorf("OPT_WORKER_COUNT must be positive, got %d", c.Optimization.WorkerCount)
	}
	if c.Solver.FDStep < 0 {
		return fmt.Errorf("SOLVER_FD_STEP must not be negative, got %g", c.Solver.FDStep)
	}
	if _, err := c.GradientScheme(); err != nil {
		return fmt.Errorf("SOLVER_GRADIENT_SCHEME: %w", err)
	}
	if _, err := optimization.ParseOptions(c.SolverOptions()); err != nil {
		return fmt.Errorf("SOLVER_OPTIONS: %w", err)
	}
	return nil
}

// GradientScheme returns the scheme used for problems without an
// objective gradient.
func (c *Config) GradientScheme() (optimization.Scheme, error) {
	s, err := optimization.ParseScheme(c.Solver.GradientScheme)
	if err != nil {
		return s, err
	}
	if s == optimization.SolverApprox {
		return s, fmt.Errorf("%w: the objective gradient cannot be delegated to the solver", optimization.ErrInvalidOption)
	}
	return s, nil
}

// SolverOptions renders the solver section as option lines. Unset
// numeric limits are omitted so the solver keeps its own defaults.
func (c *Config) SolverOptions() []string {
	lines := []string{"print_level " + strconv.Itoa(c.Solver.PrintLevel)}
	if c.Solver.MaxIter > 0 {
		lines = append(lines, "max_iter "+strconv.Itoa(c.Solver.MaxIter))
	}
	if c.Solver.Tol > 0 {
		lines = append(lines, "tol "+strconv.FormatFloat(c.Solver.Tol, 'g', -1, 64))
	}
	for _, opt := range c.Solver.Options {
		if opt = strings.TrimSpace(opt); opt != "" {
			lines = append(lines, opt)
		}
	}
	return lines
}

// MinimizeOptions returns the optimization.Minimize options implied by
// the solver section.
func (c *Config) MinimizeOptions(logger *zap.Logger) []optimization.MinimizeOption {
	return []optimization.MinimizeOption{
		optimization.WithLogger(logger),
		optimization.WithStep(c.Solver.FDStep),
		optimization.WithDefaultOptions(c.SolverOptions()),
	}
}

// ApplyDefaults sets the configured gradient scheme on p when p has no
// gradient and no explicit scheme.
func (c *Config) ApplyDefaults(p *optimization.Problem) {
	if p.Gradient != nil || p.GradientScheme != optimization.Default {
		return
	}
	if s, err := c.GradientScheme(); err == nil {
		p.GradientScheme = s
	}
}
