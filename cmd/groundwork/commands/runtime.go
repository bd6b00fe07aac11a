package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/groundwork-io/groundwork/pkg/config"
	"github.com/groundwork-io/groundwork/pkg/engine"
	"github.com/groundwork-io/groundwork/pkg/policy"
	"github.com/groundwork-io/groundwork/pkg/providers"
	"github.com/groundwork-io/groundwork/pkg/providers/azure"
	"github.com/groundwork-io/groundwork/pkg/providers/memory"
	"github.com/groundwork-io/groundwork/pkg/stores"
)

const defaultStatePath = "groundwork.db"

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode output")
		return
	}
	fmt.Println(string(data))
}

// cmdLogger returns the process logger for engine components.
func cmdLogger() zerolog.Logger {
	return log.Logger
}

// runtime bundles the components a command needs: parsed configuration, the
// state store, and the provider registry.
type runtime struct {
	parsed   *config.ParsedConfig
	decls    []*engine.Declaration
	store    *stores.SQLiteStore
	registry *providers.Registry
}

// newRuntime loads configuration, opens the state store, and builds the
// provider registry. Configuration validation failures print diagnostics and
// return exit code 3.
func newRuntime(ctx context.Context) (*runtime, error) {
	parsed, decls, err := loadConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, parsed.Workspace)
	if err != nil {
		return nil, err
	}

	registry, err := newRegistry()
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		parsed:   parsed,
		decls:    decls,
		store:    store,
		registry: registry,
	}, nil
}

func (r *runtime) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close state store")
		}
	}
}

// buildGraph loads the declarations into a model and builds the dependency
// graph. Model and graph errors are validation failures (exit 3).
func (r *runtime) buildGraph() (*engine.Model, *engine.Graph, error) {
	model, err := engine.LoadDeclarations(r.decls, r.registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, exitWithCode(3, "declarations invalid")
	}

	graph, err := engine.NewGraphBuilder().Build(model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, exitWithCode(3, "dependency graph invalid")
	}

	return model, graph, nil
}

// newPolicyEngine builds the policy engine with builtins plus any --policy
// paths.
func newPolicyEngine(ctx context.Context) (*policy.Engine, error) {
	policyEngine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(policyPaths) > 0 {
		if err := policyEngine.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}
	return policyEngine, nil
}

// checkPolicies evaluates the plan and prints violations. A disallowed plan
// returns exit code 3.
func checkPolicies(ctx context.Context, plan *engine.Plan) error {
	policyEngine, err := newPolicyEngine(ctx)
	if err != nil {
		return err
	}

	result, err := policyEngine.EvaluatePlan(ctx, plan)
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		log.Warn().Msg(warning)
	}
	for _, v := range result.Violations {
		fmt.Fprintf(os.Stderr, "policy %s (%s): %s\n", v.Policy, v.Severity, v.Message)
	}
	if !result.Allowed {
		return exitWithCode(3, "plan rejected by policy")
	}
	return nil
}

func loadConfiguration(ctx context.Context) (*config.ParsedConfig, []*engine.Declaration, error) {
	parser := config.NewCUEParser()
	parsed, err := parser.ParseWithOverlays(ctx, configPaths, overlayPaths)
	if err != nil {
		return nil, nil, err
	}

	if len(parsed.Errors) > 0 {
		for _, e := range parsed.Errors {
			switch {
			case e.File != "" && e.Line > 0:
				fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", e.File, e.Line, e.Column, e.Message)
			case e.Path != "":
				fmt.Fprintf(os.Stderr, "%s: %s\n", e.Path, e.Message)
			default:
				fmt.Fprintf(os.Stderr, "%s\n", e.Message)
			}
		}
		return nil, nil, exitWithCode(3, fmt.Sprintf("configuration has %d errors", len(parsed.Errors)))
	}

	return parsed, parsed.Declarations(), nil
}

func resolveStatePath(workspace config.WorkspaceConfig) string {
	if statePath != "" {
		return statePath
	}
	if workspace.StatePath != "" {
		return workspace.StatePath
	}
	return defaultStatePath
}

func openStore(ctx context.Context, workspace config.WorkspaceConfig) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: resolveStatePath(workspace)})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newRegistry registers the built-in providers. The Azure provider is only
// wired when a subscription is configured in the environment; everything
// else works offline.
func newRegistry() (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if err := registry.Register(memory.Prefix, memory.New()); err != nil {
		return nil, err
	}

	if subscription := os.Getenv("AZURE_SUBSCRIPTION_ID"); subscription != "" {
		azureProvider, err := azure.New(azure.Config{SubscriptionID: subscription})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize azure provider: %w", err)
		}
		if err := registry.Register(azure.Prefix, azureProvider); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
