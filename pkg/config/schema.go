package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var experimentSchemaSource string

// SchemaValidator validates decoded experiment documents against the
// embedded CUE schema.
type SchemaValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewSchemaValidator compiles the embedded schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	ctx := cuecontext.New()

	val := ctx.CompileString(experimentSchemaSource, cue.Filename("schema.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	schema := val.LookupPath(cue.ParsePath("#Experiment"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("schema has no #Experiment definition: %w", err)
	}

	return &SchemaValidator{ctx: ctx, schema: schema}, nil
}

// Validate unifies the decoded document with the schema and reports any
// constraint violation.
func (sv *SchemaValidator) Validate(data interface{}) error {
	dataVal := sv.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	unified := sv.schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
