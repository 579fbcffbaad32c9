package backend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Parameter Set
// =============================================================================

// Param is a single named launch parameter. Values may be string, bool, int
// or float64.
type Param struct {
	Key   string
	Value any
}

// ParameterSet is a built launch specification for a backend: command prefix,
// ordered parameters, and environment variables. Produced fresh per build;
// not mutated afterwards.
type ParameterSet struct {
	CommandPrefix []string
	Params        []Param
	Env           map[string]string
}

// NewParameterSet creates an empty parameter set with the given command prefix.
func NewParameterSet(commandPrefix []string) *ParameterSet {
	return &ParameterSet{
		CommandPrefix: commandPrefix,
		Env:           make(map[string]string),
	}
}

// Set adds or replaces a parameter, preserving insertion order.
func (p *ParameterSet) Set(key string, value any) *ParameterSet {
	for i := range p.Params {
		if p.Params[i].Key == key {
			p.Params[i].Value = value
			return p
		}
	}
	p.Params = append(p.Params, Param{Key: key, Value: value})
	return p
}

// SetEnv adds or replaces an environment variable.
func (p *ParameterSet) SetEnv(key, value string) *ParameterSet {
	p.Env[key] = value
	return p
}

// Get returns the value for key and whether it is present.
func (p *ParameterSet) Get(key string) (any, bool) {
	for _, param := range p.Params {
		if param.Key == key {
			return param.Value, true
		}
	}
	return nil, false
}

// EnvKeys returns the environment variable names in sorted order.
func (p *ParameterSet) EnvKeys() []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CLIArgs renders the parameters as command line arguments
// (e.g. `--host 0.0.0.0 --port 8000`).
// Skips `flexserv-token`, which travels via the FLEXSERV_TOKEN environment
// variable so the launch script can inject it at runtime, and
// `default-model`, which is passed as a positional argument instead of a
// flag. Bool true renders a bare flag; bool false and nil are omitted.
func (p *ParameterSet) CLIArgs() []string {
	var out []string
	for _, param := range p.Params {
		if param.Key == "flexserv-token" || param.Key == "default-model" {
			continue
		}
		flag := "--" + strings.ReplaceAll(param.Key, "_", "-")
		switch v := param.Value.(type) {
		case nil:
		case bool:
			if v {
				out = append(out, flag)
			}
		case string:
			out = append(out, flag, v)
		case int:
			out = append(out, flag, strconv.Itoa(v))
		case float64:
			out = append(out, flag, strconv.FormatFloat(v, 'g', -1, 64))
		default:
			out = append(out, flag, fmt.Sprintf("%v", v))
		}
	}
	return out
}

// =============================================================================
// Builders
// =============================================================================

// ModelSpec is the subset of a server descriptor the parameter builders need.
type ModelSpec struct {
	DefaultModel          string
	DefaultEmbeddingModel string
}

// BuildParameters builds the launch parameter set for a backend on a target.
// It is total over all backend kinds and targets, pure, and deterministic:
// identical inputs produce identical output including parameter order.
func BuildParameters(b Backend, spec ModelSpec, target Target) *ParameterSet {
	switch b.kind {
	case Transformers:
		return buildTransformers(b, spec, target)
	case VLlm, SGLang, TrtLlm:
		// No launch flags until pod image support lands for these kinds;
		// the placeholder command prefix documents the state.
		return NewParameterSet(b.PodCommandPrefix())
	}
	return NewParameterSet(b.PodCommandPrefix())
}

func buildTransformers(b Backend, spec ModelSpec, target Target) *ParameterSet {
	params := NewParameterSet(b.PodCommandPrefix())
	params.Set("default-model", spec.DefaultModel)
	if target == TargetPod {
		params.Set("host", "0.0.0.0")
		params.Set("port", 8000)
	}
	if spec.DefaultEmbeddingModel != "" {
		params.Set("default-embedding-model", spec.DefaultEmbeddingModel)
	}
	return params
}
