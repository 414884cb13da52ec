// Package toolbox holds the demo tools shipped with the autocot CLI.
package toolbox

import (
	"context"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"github.com/go-go-golems/autocot/pkg/inference/tools"
	"github.com/pkg/errors"
)

type CalcInput struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression using + - * / % and parentheses"`
}

type NowInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name, UTC when empty"`
}

type EchoInput struct {
	Text string `json:"text" jsonschema:"description=Text to repeat"`
}

type WeatherInput struct {
	City string `json:"city" jsonschema:"description=The city name"`
}

type WeatherResult struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    int     `json:"humidity"`
}

// Register adds calc, now, echo and weather to b.
func Register(b *tools.RegistryBuilder) *tools.RegistryBuilder {
	return b.
		RegisterFunc("calc", "Evaluates an arithmetic expression", Calc,
			tools.WithExampleArgs(map[string]interface{}{"expression": "(2 + 3) * 4"})).
		RegisterFunc("now", "Returns the current time", Now,
			tools.WithExampleArgs(map[string]interface{}{"timezone": "Europe/Paris"})).
		RegisterFunc("echo", "Returns its input unchanged", Echo).
		RegisterFunc("weather", "Returns made-up weather for a city", Weather,
			tools.WithDetail("The data is fake and meant for demos."))
}

// NewRegistry returns a registry holding the demo tools.
func NewRegistry() (*tools.Registry, error) {
	return Register(tools.NewRegistryBuilder()).Build()
}

func Calc(in CalcInput) (string, error) {
	expr, err := parser.ParseExpr(in.Expression)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse %q", in.Expression)
	}
	v, err := eval(expr)
	if err != nil {
		return "", err
	}
	if v.Kind() == constant.Int {
		return v.ExactString(), nil
	}
	f, _ := constant.Float64Val(v)
	return fmt.Sprintf("%g", f), nil
}

func eval(e ast.Expr) (constant.Value, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, errors.Errorf("unsupported literal %s", n.Value)
		}
		return constant.MakeFromLiteral(n.Value, n.Kind, 0), nil
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		if n.Op != token.SUB && n.Op != token.ADD {
			return nil, errors.Errorf("unsupported operator %s", n.Op)
		}
		return constant.UnaryOp(n.Op, x, 0), nil
	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL:
			return constant.BinaryOp(x, n.Op, y), nil
		case token.QUO, token.REM:
			if constant.Sign(y) == 0 {
				return nil, errors.New("division by zero")
			}
			if n.Op == token.REM {
				if x.Kind() != constant.Int || y.Kind() != constant.Int {
					return nil, errors.New("% needs integers")
				}
				return constant.BinaryOp(x, n.Op, y), nil
			}
			if x.Kind() == constant.Int && y.Kind() == constant.Int {
				// integer division only when exact
				if r := constant.BinaryOp(x, token.REM, y); constant.Sign(r) == 0 {
					return constant.BinaryOp(x, token.QUO_ASSIGN, y), nil
				}
			}
			return constant.BinaryOp(x, token.QUO, y), nil
		default:
			return nil, errors.Errorf("unsupported operator %s", n.Op)
		}
	default:
		return nil, errors.Errorf("unsupported expression %T", e)
	}
}

func Now(ctx context.Context, in NowInput) (string, error) {
	loc := time.UTC
	if in.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(in.Timezone)
		if err != nil {
			return "", errors.Wrapf(err, "unknown timezone %s", in.Timezone)
		}
	}
	return time.Now().In(loc).Format(time.RFC3339), nil
}

func Echo(in EchoInput) (string, error) {
	return in.Text, nil
}

func Weather(in WeatherInput) (WeatherResult, error) {
	city := strings.TrimSpace(in.City)
	if city == "" {
		return WeatherResult{}, errors.New("city is required")
	}
	// deterministic per city so demos are reproducible
	sum := 0
	for _, r := range strings.ToLower(city) {
		sum += int(r)
	}
	conditions := []string{"sunny", "cloudy", "rainy", "windy"}
	return WeatherResult{
		City:        city,
		Temperature: float64(10 + sum%20),
		Condition:   conditions[sum%len(conditions)],
		Humidity:    40 + sum%50,
	}, nil
}
