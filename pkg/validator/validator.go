// Package validator compiles the per-stage JSON schemas once and
// validates parsed LLM responses against them before the stage engine
// persists any result — spec.md §4.F.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Stage names, matching pkg/store's Stage* constants.
const (
	StageFilter     = "filter"
	StageCategorize = "categorize"
	StageSummarize  = "summarize"
	StageExtract    = "extract"
)

// Validator holds one compiled jsonschema.Schema per pipeline stage.
// Compilation happens once in New; Validate is safe for concurrent use
// since jsonschema.Schema.Validate does not mutate the schema.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles all four stage schemas. A compile failure here is a
// programmer error (the schemas are fixed constants), not a runtime
// condition callers should expect to handle per-batch — so New
// returns an error rather than panicking, and callers fail fast at
// startup if it ever occurs.
func New() (*Validator, error) {
	raw := map[string]string{
		StageFilter:     filterSchema,
		StageCategorize: categorizeSchema,
		StageSummarize:  summarizeSchema,
		StageExtract:    extractSchema,
	}

	c := jsonschema.NewCompiler()
	for stage, schema := range raw {
		if err := c.AddResource(stage+".json", bytes.NewReader([]byte(schema))); err != nil {
			return nil, fmt.Errorf("validator: add schema %s: %w", stage, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(raw))
	for stage := range raw {
		sch, err := c.Compile(stage + ".json")
		if err != nil {
			return nil, fmt.Errorf("validator: compile schema %s: %w", stage, err)
		}
		schemas[stage] = sch
	}

	return &Validator{schemas: schemas}, nil
}

// Validate checks raw (a parsed-then-remarshaled or raw JSON response
// body from the LLM) against stage's schema. An unknown stage is a
// programmer error and returns an error rather than silently passing.
//
// Per spec.md §4.F: "Validation failure raises an error; the stage
// engine logs and records the batch index as failed but continues
// with subsequent batches" — so callers are expected to treat this
// error as recoverable at the batch level, not fatal to the run.
func (v *Validator) Validate(stage string, raw []byte) error {
	sch, ok := v.schemas[stage]
	if !ok {
		return fmt.Errorf("validator: unknown stage %q", stage)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("validator: stage %s: response is not valid JSON: %w", stage, err)
	}

	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("validator: stage %s: schema validation failed: %w", stage, err)
	}
	return nil
}
