package interp

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/raymyers/ralph-ssa/pkg/ir"
	"gopkg.in/yaml.v3"
)

// Case is an expected run of one function. Program files carry their cases
// next to the unit description under a top-level cases key.
type Case struct {
	Func  string   `yaml:"func"`
	Args  []int64  `yaml:"args"`
	Want  int64    `yaml:"want"`
	Trace []string `yaml:"trace,omitempty"`
}

func (c Case) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf("%s(%s)", c.Func, strings.Join(args, ", "))
}

func (e ExternalCall) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Callee, strings.Join(args, ", "))
}

// LoadCases reads the cases of a program file
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Cases []Case `yaml:"cases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parsing cases: %w", path, err)
	}
	return doc.Cases, nil
}

// Check runs every case on a fresh machine and reports the first mismatch
func Check(u *ir.Unit, cases []Case) error {
	for _, c := range cases {
		res, err := New(u).Run(c.Func, c.Args...)
		if err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		if res.Value.I != c.Want {
			return fmt.Errorf("%s = %d, want %d", c, res.Value.I, c.Want)
		}
		if c.Trace == nil {
			continue
		}
		trace := make([]string, len(res.Trace))
		for i, call := range res.Trace {
			trace[i] = call.String()
		}
		if !slices.Equal(trace, c.Trace) {
			return fmt.Errorf("%s: trace %v, want %v", c, trace, c.Trace)
		}
	}
	return nil
}
