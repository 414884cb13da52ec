package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-go-golems/autocot/pkg/inference/tools"
)

// ToolInfo is what the system prompt shows about one tool.
type ToolInfo struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Detail      string                 `yaml:"detail,omitempty"`
	Args        map[string]interface{} `yaml:"args,omitempty"`
	// ArgOrder fixes the order arguments are listed in.
	ArgOrder []string `yaml:"arg_order,omitempty"`
}

// ToolInfoFromDefinition uses the definition's example arguments. Parameters
// without an example are listed with a placeholder of their schema type.
func ToolInfoFromDefinition(def *tools.ToolDefinition) ToolInfo {
	args := map[string]interface{}{}
	for k, v := range def.ExampleArgs {
		args[k] = v
	}
	order := append([]string{}, def.ParamOrder...)
	if def.Parameters != nil && def.Parameters.Properties != nil {
		for _, name := range def.ParamOrder {
			if _, ok := args[name]; ok {
				continue
			}
			if prop, ok := def.Parameters.Properties.Get(name); ok && prop != nil {
				args[name] = placeholderFor(prop.Type)
			}
		}
	}
	for k := range args {
		if !contains(order, k) {
			order = append(order, k)
		}
	}
	return ToolInfo{
		Name:        def.Name,
		Description: def.Description,
		Detail:      def.Detail,
		Args:        args,
		ArgOrder:    order,
	}
}

// ToolInfosFromRegistry lists all tools of reg in registration order.
func ToolInfosFromRegistry(reg *tools.Registry) []ToolInfo {
	ret := []ToolInfo{}
	for _, def := range reg.List() {
		ret = append(ret, ToolInfoFromDefinition(def))
	}
	return ret
}

func placeholderFor(schemaType string) interface{} {
	switch schemaType {
	case "integer":
		return 0
	case "number":
		return 0.0
	case "boolean":
		return false
	case "array":
		return []interface{}{}
	case "object":
		return map[string]interface{}{}
	default:
		return ""
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func (t ToolInfo) orderedArgs() []string {
	if len(t.ArgOrder) > 0 {
		ret := []string{}
		for _, k := range t.ArgOrder {
			if _, ok := t.Args[k]; ok {
				ret = append(ret, k)
			}
		}
		return ret
	}
	keys := make([]string, 0, len(t.Args))
	for k := range t.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExampleCall renders name(k=v, ...) with literal values.
func (t ToolInfo) ExampleCall() string {
	parts := []string{}
	for _, k := range t.orderedArgs() {
		parts = append(parts, k+"="+FormatArgValue(t.Args[k]))
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(parts, ", "))
}

// Signature renders name(k:type, ...).
func (t ToolInfo) Signature() string {
	parts := []string{}
	for _, k := range t.orderedArgs() {
		parts = append(parts, k+":"+argTypeName(t.Args[k]))
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(parts, ", "))
}

var argEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	`"`, `\"`,
)

// FormatArgValue renders v as a call literal: quoted escaped strings,
// lower-case booleans, null, and JSON for everything else.
func FormatArgValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return `"` + argEscaper.Replace(t) + `"`
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func argTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "str"
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case []interface{}, []string, []int, []float64:
		return "list"
	case map[string]interface{}:
		return "dict"
	default:
		return fmt.Sprintf("%T", v)
	}
}
