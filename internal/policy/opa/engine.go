package opa

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// FeatureQuery is the rule consulted for feature access.
const FeatureQuery = "data.talkgate.features.allow"

//go:embed policies/*.rego
var embedded embed.FS

// Engine wraps OPA rego engine for policy evaluation
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu           sync.RWMutex
	modules      map[string]string
	featureQuery rego.PreparedEvalQuery
}

// NewEngine creates a new OPA engine. An empty policyDir uses the embedded
// policies.
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
	}

	if err := e.load(); err != nil {
		return nil, err
	}

	source := policyDir
	if source == "" {
		source = "embedded"
	}
	e.logger.Info().Str("policy_dir", source).Msg("OPA engine initialized")

	return e, nil
}

// load reads, parses and compiles the policies, then swaps them in.
func (e *Engine) load() error {
	modules, err := e.readPolicies()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	opts := []func(*rego.Rego){rego.Query(FeatureQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare feature query: %w", err)
	}

	e.mu.Lock()
	e.modules = modules
	e.featureQuery = query
	e.mu.Unlock()

	return nil
}

// readPolicies returns the .rego sources keyed by file name
func (e *Engine) readPolicies() (map[string]string, error) {
	var (
		files []string
		read  func(string) ([]byte, error)
		err   error
	)

	if e.policyDir == "" {
		files, err = fs.Glob(embedded, "policies/*.rego")
		read = embedded.ReadFile
	} else {
		files, err = filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
		read = os.ReadFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", e.policyDir)
	}

	e.logger.Info().Int("count", len(files)).Msg("Loading policy files")

	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := read(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules[file] = string(content)
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	return modules, nil
}

// EvaluateFeature evaluates the feature rule for input
func (e *Engine) EvaluateFeature(ctx context.Context, input map[string]interface{}) (bool, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.featureQuery
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("feature query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Feature query evaluated")

	// Undefined result means deny
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allow, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("feature decision is not a boolean: %T", results[0].Expressions[0].Value)
	}

	return allow, nil
}

// Reload reloads all policies. On failure the previous policies stay active.
func (e *Engine) Reload() error {
	e.logger.Info().Msg("Reloading OPA policies")

	if err := e.load(); err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}

	e.logger.Info().Msg("OPA policies reloaded successfully")
	return nil
}

// ModuleCount returns the number of loaded policy modules
func (e *Engine) ModuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.modules)
}
