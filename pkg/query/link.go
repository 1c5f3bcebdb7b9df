package query

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// conditionEnv is the environment of link conditions: value is the routed value and output the
// whole output of the source module.
type conditionEnv struct {
	Value  any            `expr:"value"`
	Output map[string]any `expr:"output"`
}

// Link routes an output of Src to an input of Dest.
type Link struct {
	Src  string `yaml:"src"`
	Dest string `yaml:"dest"`
	// SrcKey selects one output. When empty, the only output value is routed, or the whole
	// output map when the source has several outputs.
	SrcKey string `yaml:"src_key,omitempty"`
	// DestKey selects the input. When empty, the only free input of Dest is used.
	DestKey string `yaml:"dest_key,omitempty"`
	// Condition is an expr-lang boolean expression over value and output. The link is
	// skipped when it is false.
	Condition string `yaml:"condition,omitempty"`
	// ConditionFn is evaluated with the routed value when set.
	ConditionFn func(value any) (bool, error) `yaml:"-"`

	program *vm.Program
}

// LinkOption configures a link.
type LinkOption func(*Link)

func WithSrcKey(key string) LinkOption {
	return func(l *Link) {
		l.SrcKey = key
	}
}

func WithDestKey(key string) LinkOption {
	return func(l *Link) {
		l.DestKey = key
	}
}

// WithCondition guards the link with an expr-lang expression, for example `len(value) > 0`.
func WithCondition(expression string) LinkOption {
	return func(l *Link) {
		l.Condition = expression
	}
}

// WithConditionFn guards the link with fn.
func WithConditionFn(fn func(value any) (bool, error)) LinkOption {
	return func(l *Link) {
		l.ConditionFn = fn
	}
}

func (l *Link) compile() error {
	if l.Condition == "" {
		return nil
	}

	program, err := expr.Compile(l.Condition, expr.Env(conditionEnv{}), expr.AsBool())
	if err != nil {
		return errors.Wrapf(ErrInvalidCondition, "%q: %s", l.Condition, err)
	}
	l.program = program

	return nil
}

// allows evaluates the link conditions.
func (l *Link) allows(value any, output map[string]any) (bool, error) {
	if l.ConditionFn != nil {
		ok, err := l.ConditionFn(value)
		if err != nil || !ok {
			return false, err
		}
	}

	if l.program == nil {
		return true, nil
	}

	res, err := expr.Run(l.program, conditionEnv{Value: value, Output: output})
	if err != nil {
		return false, errors.Wrapf(err, "unable to evaluate condition %q", l.Condition)
	}

	ok, _ := res.(bool)

	return ok, nil
}

func (l *Link) label() string {
	src := l.SrcKey
	if src == "" {
		src = "*"
	}

	label := src + " -> " + l.DestKey
	if l.Condition != "" {
		label += " [" + l.Condition + "]"
	}

	return label
}
