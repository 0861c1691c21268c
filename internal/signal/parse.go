package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const schemaJSON = `{
  "type": "object",
  "required": ["symbol", "action"],
  "properties": {
    "id":          {"type": "string"},
    "symbol":      {"type": "string", "minLength": 1},
    "action":      {"type": "string"},
    "size":        {"type": "number", "minimum": 0},
    "price":       {"type": "number", "minimum": 0},
    "stop_loss":   {"type": "number", "minimum": 0},
    "take_profit": {"type": "number", "minimum": 0},
    "confidence":  {"type": "number", "minimum": 0, "maximum": 1},
    "reason":      {"type": "string"},
    "metadata":    {"type": "object"}
  }
}`

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("signal.json", strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("signal.json")
}

// Parse validates raw JSON against the signal schema and returns the
// normalized signal. The action check happens before schema validation so
// the common producer mistakes get a direct message.
func Parse(raw []byte) (Signal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Signal{}, fmt.Errorf("signal payload is empty")
	}
	if !gjson.Valid(text) {
		return Signal{}, fmt.Errorf("signal payload is not valid json")
	}
	parsed := gjson.Parse(text)
	if !parsed.IsObject() {
		return Signal{}, fmt.Errorf("signal root must be a json object")
	}
	action := strings.ToLower(strings.TrimSpace(parsed.Get("action").String()))
	if action == "" {
		return Signal{}, fmt.Errorf("signal missing action field")
	}
	if !Action(action).Valid() {
		return Signal{}, fmt.Errorf("unknown signal action %q", action)
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Signal{}, fmt.Errorf("signal schema: %w", err)
	}

	var s Signal
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	s.Normalize()
	if s.Symbol == "" {
		return Signal{}, fmt.Errorf("signal missing symbol")
	}
	return s, nil
}
