package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ToolDefinition describes a callable tool and how its arguments are shaped.
type ToolDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Detail      string             `json:"detail,omitempty" yaml:"detail,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters" yaml:"-"`
	// ParamOrder maps positional arguments onto parameter names.
	ParamOrder []string `json:"param_order,omitempty" yaml:"param_order,omitempty"`
	// ExampleArgs are shown to the model as a sample call.
	ExampleArgs map[string]interface{} `json:"example_args,omitempty" yaml:"example_args,omitempty"`
	Tags        []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	Function    ToolFunc               `json:"-" yaml:"-"`
}

type DefinitionOption func(*ToolDefinition)

func WithDetail(detail string) DefinitionOption {
	return func(d *ToolDefinition) {
		d.Detail = detail
	}
}

func WithExampleArgs(args map[string]interface{}) DefinitionOption {
	return func(d *ToolDefinition) {
		d.ExampleArgs = args
	}
}

func WithTags(tags ...string) DefinitionOption {
	return func(d *ToolDefinition) {
		d.Tags = append(d.Tags, tags...)
	}
}

// ToolFunc wraps the user function behind a JSON-in executor.
type ToolFunc struct {
	Fn         interface{}
	executor   func(context.Context, []byte) (interface{}, error)
	inputType  reflect.Type
	outputType reflect.Type
}

// NewToolFromFunc builds a definition from fn, which must have one of the shapes
//
//	func(In) Out
//	func(In) (Out, error)
//	func(context.Context, In) (Out, error)
//	func(context.Context) (Out, error)
//	func() (Out, error)
//
// In must be a struct; its JSON schema becomes the tool's parameter schema.
// An empty name is derived from the Go function name in snake_case.
func NewToolFromFunc(name, description string, fn interface{}, opts ...DefinitionOption) (*ToolDefinition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}
	if funcType.NumOut() == 0 || funcType.NumOut() > 2 {
		return nil, errors.New("function must return (result) or (result, error)")
	}
	if funcType.NumOut() == 2 && !funcType.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be an error")
	}

	var inType reflect.Type
	switch funcType.NumIn() {
	case 0:
	case 1:
		if funcType.In(0) != contextType {
			inType = funcType.In(0)
		}
	case 2:
		if funcType.In(0) != contextType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		inType = funcType.In(1)
	default:
		return nil, errors.New("function must take (Input), (context.Context, Input) or no input")
	}
	if inType != nil && !(inType.Kind() == reflect.Struct || (inType.Kind() == reflect.Ptr && inType.Elem().Kind() == reflect.Struct)) {
		return nil, errors.Errorf("tool input must be a struct, got %s", inType)
	}

	if name == "" {
		name = funcName(fn)
	}
	if name == "" {
		return nil, errors.New("could not derive a tool name")
	}

	schema := reflectSchema(inType)
	def := &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		ParamOrder:  propertyOrder(schema),
		Function: ToolFunc{
			Fn:         fn,
			executor:   newExecutor(fn, funcType, inType),
			inputType:  inType,
			outputType: funcType.Out(0),
		},
	}
	for _, o := range opts {
		o(def)
	}
	return def, nil
}

// Execute runs the function with JSON encoded arguments.
func (tf *ToolFunc) Execute(ctx context.Context, args []byte) (interface{}, error) {
	if tf.executor == nil {
		return nil, errors.New("tool function not properly initialized")
	}
	return tf.executor(ctx, args)
}

// HasInput reports whether the function takes an argument struct.
func (tf *ToolFunc) HasInput() bool {
	return tf.inputType != nil
}

func funcName(fn interface{}) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}
	n := f.Name()
	if idx := strings.LastIndex(n, "."); idx >= 0 {
		n = n[idx+1:]
	}
	// closures are named func1, func2, ...
	if strings.HasPrefix(n, "func") {
		return ""
	}
	return strcase.ToSnake(n)
}

func reflectSchema(inType reflect.Type) *jsonschema.Schema {
	if inType == nil {
		return &jsonschema.Schema{Type: "object"}
	}
	if inType.Kind() == reflect.Ptr {
		inType = inType.Elem()
	}
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(reflect.New(inType).Elem().Interface())
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}
	return schema
}

func propertyOrder(schema *jsonschema.Schema) []string {
	if schema == nil || schema.Properties == nil {
		return nil
	}
	var ret []string
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		ret = append(ret, pair.Key)
	}
	return ret
}

func newExecutor(fn interface{}, funcType reflect.Type, inType reflect.Type) func(context.Context, []byte) (interface{}, error) {
	funcValue := reflect.ValueOf(fn)
	takesContext := funcType.NumIn() > 0 && funcType.In(0) == contextType

	return func(ctx context.Context, args []byte) (interface{}, error) {
		log.Trace().
			Str("func_type", funcType.String()).
			Int("args_len", len(args)).
			Msg("tools: executor invoked")

		var in []reflect.Value
		if takesContext {
			in = append(in, reflect.ValueOf(ctx))
		}
		if inType != nil {
			input := reflect.New(inType)
			if len(args) > 0 {
				if err := json.Unmarshal(args, input.Interface()); err != nil {
					return nil, errors.Wrap(err, "failed to unmarshal arguments")
				}
			}
			in = append(in, input.Elem())
		}

		return extractResults(funcValue.Call(in))
	}
}

func extractResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		result := results[0].Interface()
		errInterface := results[1].Interface()
		if errInterface == nil {
			return result, nil
		}
		if err, ok := errInterface.(error); ok {
			return result, err
		}
		return result, fmt.Errorf("unexpected error type: %T", errInterface)
	default:
		return nil, fmt.Errorf("unexpected number of return values: %d", len(results))
	}
}
