package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// BuiltinCollection is the collection name for the native handlers.
const BuiltinCollection = "builtins"

// RegisterBuiltins adds the native plugin collection to the registry.
// The collection covers the arithmetic, string, and list operations used
// by the bundled example experiments.
func RegisterBuiltins(r *Registry) {
	r.Register(BuiltinCollection, "math", "add", builtinAdd)
	r.Register(BuiltinCollection, "math", "subtract", builtinSubtract)
	r.Register(BuiltinCollection, "math", "multiply", builtinMultiply)
	r.Register(BuiltinCollection, "math", "divide", builtinDivide)
	r.Register(BuiltinCollection, "math", "square", builtinSquare)

	r.Register(BuiltinCollection, "strings", "split", builtinSplit)
	r.Register(BuiltinCollection, "strings", "join", builtinJoin)
	r.Register(BuiltinCollection, "strings", "concat", builtinConcat)
	r.Register(BuiltinCollection, "strings", "lower", builtinLower)
	r.Register(BuiltinCollection, "strings", "upper", builtinUpper)

	r.Register(BuiltinCollection, "lists", "range", builtinRange)
	r.Register(BuiltinCollection, "lists", "length", builtinLength)
	r.Register(BuiltinCollection, "lists", "sum", builtinSum)
}

// number extracts a float from an int or float value.
func number(v engine.Value) (float64, error) {
	switch v.Kind() {
	case engine.KindInt:
		return float64(v.IntVal()), nil
	case engine.KindFloat:
		return v.FloatVal(), nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", v.Kind())
	}
}

// numericResult keeps integer arithmetic integral when both inputs are ints.
func numericResult(a, b engine.Value, f float64) engine.Value {
	if a.Kind() == engine.KindInt && b.Kind() == engine.KindInt {
		return engine.Int(int64(f))
	}
	return engine.Float(f)
}

func binaryNumbers(args []engine.Value, op string) (engine.Value, engine.Value, float64, float64, error) {
	if len(args) != 2 {
		return engine.Null(), engine.Null(), 0, 0, fmt.Errorf("%s takes 2 arguments, got %d", op, len(args))
	}
	a, err := number(args[0])
	if err != nil {
		return engine.Null(), engine.Null(), 0, 0, err
	}
	b, err := number(args[1])
	if err != nil {
		return engine.Null(), engine.Null(), 0, 0, err
	}
	return args[0], args[1], a, b, nil
}

func builtinAdd(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	x, y, a, b, err := binaryNumbers(args, "add")
	if err != nil {
		return engine.Null(), err
	}
	return numericResult(x, y, a+b), nil
}

func builtinSubtract(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	x, y, a, b, err := binaryNumbers(args, "subtract")
	if err != nil {
		return engine.Null(), err
	}
	return numericResult(x, y, a-b), nil
}

func builtinMultiply(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	x, y, a, b, err := binaryNumbers(args, "multiply")
	if err != nil {
		return engine.Null(), err
	}
	return numericResult(x, y, a*b), nil
}

func builtinDivide(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	_, _, a, b, err := binaryNumbers(args, "divide")
	if err != nil {
		return engine.Null(), err
	}
	if b == 0 {
		return engine.Null(), fmt.Errorf("division by zero")
	}
	return engine.Float(a / b), nil
}

func builtinSquare(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 {
		return engine.Null(), fmt.Errorf("square takes 1 argument, got %d", len(args))
	}
	a, err := number(args[0])
	if err != nil {
		return engine.Null(), err
	}
	return numericResult(args[0], args[0], a*a), nil
}

func builtinSplit(_ context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 || args[0].Kind() != engine.KindString {
		return engine.Null(), fmt.Errorf("split takes 1 string argument")
	}
	sep := " "
	if v, ok := kwargs["sep"]; ok {
		if v.Kind() != engine.KindString {
			return engine.Null(), fmt.Errorf("sep must be a string")
		}
		sep = v.StringVal()
	}
	parts := strings.Split(args[0].StringVal(), sep)
	elems := make([]engine.Value, len(parts))
	for i, p := range parts {
		elems[i] = engine.String(p)
	}
	return engine.List(elems...), nil
}

func builtinJoin(_ context.Context, args []engine.Value, kwargs map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 || args[0].Kind() != engine.KindList {
		return engine.Null(), fmt.Errorf("join takes 1 list argument")
	}
	sep := ""
	if v, ok := kwargs["sep"]; ok {
		if v.Kind() != engine.KindString {
			return engine.Null(), fmt.Errorf("sep must be a string")
		}
		sep = v.StringVal()
	}
	parts := make([]string, 0, len(args[0].ListVal()))
	for _, elem := range args[0].ListVal() {
		if elem.Kind() != engine.KindString {
			return engine.Null(), fmt.Errorf("join elements must be strings, got %s", elem.Kind())
		}
		parts = append(parts, elem.StringVal())
	}
	return engine.String(strings.Join(parts, sep)), nil
}

func builtinConcat(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	var sb strings.Builder
	for _, arg := range args {
		if arg.Kind() != engine.KindString {
			return engine.Null(), fmt.Errorf("concat arguments must be strings, got %s", arg.Kind())
		}
		sb.WriteString(arg.StringVal())
	}
	return engine.String(sb.String()), nil
}

func builtinLower(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 || args[0].Kind() != engine.KindString {
		return engine.Null(), fmt.Errorf("lower takes 1 string argument")
	}
	return engine.String(strings.ToLower(args[0].StringVal())), nil
}

func builtinUpper(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 || args[0].Kind() != engine.KindString {
		return engine.Null(), fmt.Errorf("upper takes 1 string argument")
	}
	return engine.String(strings.ToUpper(args[0].StringVal())), nil
}

func builtinRange(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0].IntVal()
	case 2:
		start, stop = args[0].IntVal(), args[1].IntVal()
	case 3:
		start, stop, step = args[0].IntVal(), args[1].IntVal(), args[2].IntVal()
	default:
		return engine.Null(), fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return engine.Null(), fmt.Errorf("range step cannot be zero")
	}

	var elems []engine.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			elems = append(elems, engine.Int(i))
		}
	} else {
		for i := start; i > stop; i += step {
			elems = append(elems, engine.Int(i))
		}
	}
	return engine.List(elems...), nil
}

func builtinLength(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 {
		return engine.Null(), fmt.Errorf("length takes 1 argument, got %d", len(args))
	}
	switch args[0].Kind() {
	case engine.KindList:
		return engine.Int(int64(len(args[0].ListVal()))), nil
	case engine.KindString:
		return engine.Int(int64(len(args[0].StringVal()))), nil
	default:
		return engine.Null(), fmt.Errorf("length takes a list or string, got %s", args[0].Kind())
	}
}

func builtinSum(_ context.Context, args []engine.Value, _ map[string]engine.Value) (engine.Value, error) {
	if len(args) != 1 || args[0].Kind() != engine.KindList {
		return engine.Null(), fmt.Errorf("sum takes 1 list argument")
	}
	var total float64
	integral := true
	for _, elem := range args[0].ListVal() {
		n, err := number(elem)
		if err != nil {
			return engine.Null(), err
		}
		if elem.Kind() != engine.KindInt {
			integral = false
		}
		total += n
	}
	if integral {
		return engine.Int(int64(total)), nil
	}
	return engine.Float(total), nil
}
