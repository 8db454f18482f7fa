package rhi

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config controls recording and translation. It is passed explicitly to the
// Executor, which hands it to every buffer it creates.
type Config struct {
	// Bypass executes every recording call immediately on the executor's
	// immediate contexts. Nothing is deferred and arenas stay empty.
	Bypass bool `env:"RHI_BYPASS" envDefault:"false"`

	// ParallelTranslate allows buffers to be translated on worker goroutines.
	ParallelTranslate bool `env:"RHI_PARALLEL_TRANSLATE" envDefault:"true"`

	// MinParallelCommands is the command count below which a buffer is
	// always translated serially.
	MinParallelCommands int `env:"RHI_PARALLEL_MIN_COMMANDS" envDefault:"64"`

	// ParallelChunkCommands is the number of commands per parallel translate
	// task. 0 translates each buffer as a single task.
	ParallelChunkCommands int `env:"RHI_PARALLEL_CHUNK_COMMANDS" envDefault:"512"`

	// TranslateWorkers is the translate pool size; 0 means GOMAXPROCS.
	TranslateWorkers int `env:"RHI_TRANSLATE_WORKERS" envDefault:"0"`

	// ArenaPageSize is the byte size of arena pages.
	ArenaPageSize int `env:"RHI_ARENA_PAGE_SIZE" envDefault:"65536"`

	// ArenaLimit caps the bytes a single buffer may allocate; 0 is unlimited.
	ArenaLimit int64 `env:"RHI_ARENA_LIMIT" envDefault:"0"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ParallelTranslate:     true,
		MinParallelCommands:   64,
		ParallelChunkCommands: 512,
		ArenaPageSize:         64 << 10,
	}
}

// ConfigFromEnv reads Config from RHI_* environment variables, falling back
// to the defaults for unset ones.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("rhi: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative sizes and counts.
func (c Config) Validate() error {
	switch {
	case c.MinParallelCommands < 0:
		return fmt.Errorf("%w: MinParallelCommands %d", ErrInvalidConfig, c.MinParallelCommands)
	case c.ParallelChunkCommands < 0:
		return fmt.Errorf("%w: ParallelChunkCommands %d", ErrInvalidConfig, c.ParallelChunkCommands)
	case c.TranslateWorkers < 0:
		return fmt.Errorf("%w: TranslateWorkers %d", ErrInvalidConfig, c.TranslateWorkers)
	case c.ArenaPageSize < 0:
		return fmt.Errorf("%w: ArenaPageSize %d", ErrInvalidConfig, c.ArenaPageSize)
	case c.ArenaLimit < 0:
		return fmt.Errorf("%w: ArenaLimit %d", ErrInvalidConfig, c.ArenaLimit)
	}
	return nil
}

// policy returns the strategy policy derived from c.
func (c Config) policy() Policy {
	return Policy{
		AllowParallel: c.ParallelTranslate && !c.Bypass,
		MinCommands:   c.MinParallelCommands,
	}
}
