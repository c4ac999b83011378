// Package schema holds the versioned extraction contract for claims documents
// and validates model output against it.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// Name identifies the contract to completion services that support named schemas.
	Name = "claims_summary_create"
	// Version is bumped whenever the contract changes shape.
	Version = "v1"

	resourceURL = "claims_summary." + Version + ".json"
)

//go:embed claims_summary.v1.json
var claimsSummaryV1 []byte

// Registry exposes the claims extraction contract.
type Registry struct {
	raw         []byte
	description string
	compiled    *jsonschema.Schema
}

// NewRegistry compiles the embedded contract.
func NewRegistry() (*Registry, error) {
	return newRegistry(claimsSummaryV1)
}

func newRegistry(raw []byte) (*Registry, error) {
	var head struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Registry{raw: raw, description: head.Description, compiled: compiled}, nil
}

func (r *Registry) Name() string        { return Name }
func (r *Registry) Version() string     { return Version }
func (r *Registry) Description() string { return r.description }

// Schema returns a fresh copy of the contract; callers may mutate it.
func (r *Registry) Schema() map[string]any {
	var m map[string]any
	// The embedded document was already decoded once in newRegistry.
	_ = json.Unmarshal(r.raw, &m)
	return m
}

// Validate checks raw JSON text against the contract. A payload that is not
// JSON, or that misses or adds fields, yields a *ViolationError.
func (r *Registry) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &ViolationError{Problems: []Problem{{Location: "", Message: "invalid JSON: " + err.Error()}}}
	}
	if dec.More() {
		return &ViolationError{Problems: []Problem{{Location: "", Message: "trailing data after JSON value"}}}
	}

	err := r.compiled.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validating against schema: %w", err)
	}
	return &ViolationError{Problems: collectProblems(ve)}
}

// Problem is a single schema failure at an instance location (JSON pointer).
type Problem struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// ViolationError lists every leaf failure of a validation run.
type ViolationError struct {
	Problems []Problem
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		loc := p.Location
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, loc+": "+p.Message)
	}
	return "schema violation: " + strings.Join(parts, "; ")
}

func collectProblems(ve *jsonschema.ValidationError) []Problem {
	if len(ve.Causes) == 0 {
		return []Problem{{Location: ve.InstanceLocation, Message: ve.Message}}
	}
	var out []Problem
	for _, c := range ve.Causes {
		out = append(out, collectProblems(c)...)
	}
	return out
}
