package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/regalloc"
	"github.com/raymyers/ralph-ssa/pkg/stacking"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv
const (
	EnvIntRegs       = "RALPH_SSA_INT_REGS"
	EnvFloatRegs     = "RALPH_SSA_FLOAT_REGS"
	EnvVerify        = "RALPH_SSA_VERIFY"
	EnvMaxRounds     = "RALPH_SSA_MAX_ROUNDS"
	EnvPromoteParams = "RALPH_SSA_PROMOTE_PARAMS"
	EnvLog           = "RALPH_SSA_LOG"
)

// Config controls one run of the pipeline
type Config struct {
	IntRegs       []int  `yaml:"int_regs"`
	FloatRegs     []int  `yaml:"float_regs"`
	PromoteParams bool   `yaml:"promote_params"`
	Verify        bool   `yaml:"verify"`
	MaxRounds     int    `yaml:"max_rounds"`
	LogLevel      string `yaml:"log"`
	StopAfter     Stage  `yaml:"stop_after"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig runs every stage with the full register banks and checks
// the allocation
func DefaultConfig() Config {
	rc := regalloc.DefaultConfig()
	return Config{
		IntRegs:   rc.IntRegs,
		FloatRegs: rc.FloatRegs,
		Verify:    true,
		MaxRounds: rc.MaxRounds,
		LogLevel:  "warn",
		StopAfter: StageAlloc,
	}
}

// LoadConfig reads a YAML config file over the defaults
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies the RALPH_SSA_* overrides that are set
func (c *Config) FromEnv() error {
	if env.Has(EnvIntRegs) {
		regs, err := ParseRegs(env.Str(EnvIntRegs), false)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIntRegs, err)
		}
		c.IntRegs = regs
	}
	if env.Has(EnvFloatRegs) {
		regs, err := ParseRegs(env.Str(EnvFloatRegs), true)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFloatRegs, err)
		}
		c.FloatRegs = regs
	}
	if env.Has(EnvVerify) {
		c.Verify = env.Bool(EnvVerify)
	}
	if env.Has(EnvPromoteParams) {
		c.PromoteParams = env.Bool(EnvPromoteParams)
	}
	if env.Has(EnvMaxRounds) {
		c.MaxRounds = env.Int(EnvMaxRounds, c.MaxRounds)
	}
	c.LogLevel = env.Str(EnvLog, c.LogLevel)
	return nil
}

// ParseRegs reads a comma separated register list such as "r4,r5" or
// "16,17". The prefix is optional but must match the class.
func ParseRegs(s string, float bool) ([]int, error) {
	prefix := "r"
	if float {
		prefix = "s"
	}
	var regs []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(f, prefix))
		if err != nil {
			return nil, fmt.Errorf("bad register %q", f)
		}
		regs = append(regs, n)
	}
	return regs, nil
}

// Validate checks that each register bank is callee-saved, distinct and
// large enough to allocate, and that the spill loop can run
func (c Config) Validate() error {
	var errs []error
	for _, bank := range []struct {
		regs  []int
		float bool
	}{{c.IntRegs, false}, {c.FloatRegs, true}} {
		switch n := len(bank.regs); {
		case n == 0:
			errs = append(errs, fmt.Errorf("no allocatable %s registers", className(bank.float)))
		case n < regalloc.MinRegs:
			errs = append(errs, fmt.Errorf("%d %s registers, the allocator needs at least %d",
				n, className(bank.float), regalloc.MinRegs))
		}
		seen := make(map[int]bool)
		for _, r := range bank.regs {
			name := mach.RegName(r, bank.float)
			if !stacking.IsCalleeSaved(mach.SavedReg{N: r, Float: bank.float}) {
				errs = append(errs, fmt.Errorf("%s is not an allocatable register", name))
			}
			if seen[r] {
				errs = append(errs, fmt.Errorf("%s listed twice", name))
			}
			seen[r] = true
		}
	}
	if c.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max_rounds must be positive, got %d", c.MaxRounds))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func className(float bool) string {
	if float {
		return "float"
	}
	return "core"
}

// RegAlloc returns the allocator settings of c
func (c Config) RegAlloc() regalloc.Config {
	return regalloc.Config{
		IntRegs:   slices.Clone(c.IntRegs),
		FloatRegs: slices.Clone(c.FloatRegs),
		MaxRounds: c.MaxRounds,
	}
}

// ParseLevel reads a log level name: debug, info, warn or error
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("bad log level %q", s)
	}
	return level, nil
}

// NewLogger creates the text logger used by the passes
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
