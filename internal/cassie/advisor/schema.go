package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// classificationSchemaJSON is the strict contract for Classify output.
// Endpoints that ignore response_format still get checked against this
// before their output is allowed anywhere near the engine.
const classificationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["intent", "confidence"],
  "properties": {
    "intent": {
      "enum": ["defect", "wrong_item", "missing_item", "faq", "human", "bye", "fallback"]
    },
    "order_id": {"type": ["string", "null"]},
    "issue_label": {"type": ["string", "null"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const classificationSchemaURL = "https://cassie.schemas.local/advisor/classification.schema.json"

var classificationSchema = mustCompileClassificationSchema()

// mustCompileClassificationSchema compiles the built-in schema. The schema
// is a compile-time constant, so a failure here is a programming error.
func mustCompileClassificationSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(classificationSchemaURL, strings.NewReader(classificationSchemaJSON)); err != nil {
		panic(fmt.Sprintf("advisor: load classification schema: %v", err))
	}
	compiled, err := c.Compile(classificationSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("advisor: compile classification schema: %v", err))
	}
	return compiled
}

// validateClassification checks raw (a JSON object) against the
// classification contract.
func validateClassification(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parse: %v", err)
	}
	if err := classificationSchema.Validate(v); err != nil {
		return fmt.Errorf("schema: %v", err)
	}
	return nil
}
