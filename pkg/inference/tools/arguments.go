package tools

import (
	"encoding/json"
	"strings"

	"github.com/go-go-golems/autocot/pkg/toolcode"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ArgParser turns the raw argument text of an invocation into structural arguments.
type ArgParser interface {
	Parse(raw string) (*toolcode.Args, error)
}

type ArgParserFunc func(raw string) (*toolcode.Args, error)

func (f ArgParserFunc) Parse(raw string) (*toolcode.Args, error) {
	return f(raw)
}

// DefaultArgParser reads Python style keyword arguments or a JSON object.
var DefaultArgParser ArgParser = ArgParserFunc(toolcode.ParseArgs)

// BindArguments maps parsed arguments onto the tool's parameters and returns
// them as a JSON object validated against the tool schema.
func BindArguments(def *ToolDefinition, args *toolcode.Args) ([]byte, error) {
	obj := make(map[string]interface{}, len(args.Keyword)+len(args.Positional))
	if len(args.Positional) > len(def.ParamOrder) {
		return nil, errors.Errorf("%s takes %d positional arguments but %d were given",
			def.Name, len(def.ParamOrder), len(args.Positional))
	}
	for i, v := range args.Positional {
		obj[def.ParamOrder[i]] = v
	}
	for k, v := range args.Keyword {
		if _, dup := obj[k]; dup {
			return nil, errors.Errorf("got multiple values for argument %q", k)
		}
		obj[k] = v
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode arguments")
	}
	if err := validateAgainstSchema(def, b); err != nil {
		return nil, err
	}
	return b, nil
}

func validateAgainstSchema(def *ToolDefinition, input []byte) error {
	if def.Parameters == nil {
		return nil
	}
	schema := *def.Parameters
	// gojsonschema only knows drafts up to 7
	schema.Version = ""
	schema.ID = ""
	schemaJSON, err := json.Marshal(&schema)
	if err != nil {
		return errors.Wrap(err, "could not encode tool schema")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(input),
	)
	if err != nil {
		return errors.Wrap(err, "could not validate arguments")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
