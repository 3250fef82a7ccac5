package pipeline

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Stage names a point in the pipeline at which the program can be dumped
// or the run stopped
type Stage int

const (
	StageIR    Stage = iota // as loaded
	StageSSA                // after Mem2Reg
	StageCSSA               // after PHI elimination
	StageMach               // after instruction selection
	StageAlloc              // after register allocation and frame layout
)

var stageNames = [...]string{"ir", "ssa", "cssa", "mach", "alloc"}

// Stages lists every stage in pipeline order
var Stages = []Stage{StageIR, StageSSA, StageCSSA, StageMach, StageAlloc}

// ErrUnknownStage is returned for a stage name that does not exist
var ErrUnknownStage = errors.New("unknown stage")

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage looks up a stage by name
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStage, name)
}

var _ pflag.Value = (*Stage)(nil)

// Set implements pflag.Value
func (s *Stage) Set(name string) error {
	v, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Type implements pflag.Value
func (s *Stage) Type() string { return "stage" }

// UnmarshalYAML reads a stage from its name
func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	return s.Set(name)
}

// MarshalYAML writes a stage as its name
func (s Stage) MarshalYAML() (any, error) {
	return s.String(), nil
}
