package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return e
}

func testDescription() engine.ExperimentDescription {
	return engine.ExperimentDescription{
		Parameters: engine.ParameterSpec{Names: []string{"learning_rate"}},
		Tasks: map[string]engine.TaskDefinition{
			"train": {
				Plugin:  "builtins.math.add",
				Outputs: engine.SingleOutput("model"),
			},
		},
		Graph: map[string]engine.StepSpec{
			"train_model": {
				Raw: engine.Map(map[string]engine.Value{
					"train": engine.List(engine.String("$learning_rate")),
				}),
			},
		},
	}
}

func TestEvaluateCleanExperiment(t *testing.T) {
	e := newTestEngine(t)

	input := BuildInput(testDescription(), "run")
	result, err := e.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}

	if !result.Allowed {
		t.Errorf("expected clean experiment to be allowed, violations: %v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("expected no violations, got %d", len(result.Violations))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}
}

func TestStepNamingViolationIsWarning(t *testing.T) {
	e := newTestEngine(t)

	desc := testDescription()
	desc.Graph["Bad-Step"] = desc.Graph["train_model"]

	result, err := e.Evaluate(context.Background(), BuildInput(desc, "validate"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}

	if !result.Allowed {
		t.Error("naming violations should not block the run")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "step-naming" && v.Step == "Bad-Step" {
			found = true
			if v.Severity != SeverityWarning {
				t.Errorf("expected warning severity, got %s", v.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected a step-naming violation for Bad-Step, got %v", result.Violations)
	}
}

func TestGraphSizeCeilingBlocks(t *testing.T) {
	e := newTestEngine(t)

	desc := testDescription()
	step := desc.Graph["train_model"]
	for i := 0; i < 501; i++ {
		desc.Graph[fmt.Sprintf("step_%d", i)] = step
	}

	result, err := e.Evaluate(context.Background(), BuildInput(desc, "run"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}

	if result.Allowed {
		t.Error("expected oversized graph to be blocked")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "graph-size" && v.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a graph-size error violation, got %v", result.Violations)
	}
}

func TestPluginCoordinateBlocks(t *testing.T) {
	e := newTestEngine(t)

	desc := testDescription()
	desc.Tasks["broken"] = engine.TaskDefinition{Plugin: "nodots"}

	result, err := e.Evaluate(context.Background(), BuildInput(desc, "run"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}

	if result.Allowed {
		t.Error("expected malformed plugin coordinate to be blocked")
	}
}

func TestDisablePolicy(t *testing.T) {
	e := newTestEngine(t)

	desc := testDescription()
	desc.Tasks["broken"] = engine.TaskDefinition{Plugin: "nodots"}

	if err := e.DisablePolicy("plugin-coordinates"); err != nil {
		t.Fatalf("failed to disable policy: %v", err)
	}

	result, err := e.Evaluate(context.Background(), BuildInput(desc, "run"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy should not fire, violations: %v", result.Violations)
	}

	if err := e.EnablePolicy("plugin-coordinates"); err != nil {
		t.Fatalf("failed to re-enable policy: %v", err)
	}
	result, err = e.Evaluate(context.Background(), BuildInput(desc, "run"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}
	if result.Allowed {
		t.Error("re-enabled policy should fire again")
	}
}

func TestEnableUnknownPolicy(t *testing.T) {
	e := newTestEngine(t)

	if err := e.EnablePolicy("no-such-policy"); err == nil {
		t.Error("expected error enabling unknown policy")
	}
}

func TestCustomPolicyViaReplace(t *testing.T) {
	e := newTestEngine(t)

	custom := Policy{
		Name:     "no-train-steps",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package dioptra.policies.custom

import rego.v1

deny contains violation if {
	some name, _ in input.experiment.graph
	startswith(name, "train")
	violation := {
		"message": sprintf("Step '%s' is forbidden", [name]),
		"severity": "error",
		"step": name,
	}
}
`,
	}

	if err := e.ReplacePolicies([]Policy{custom}); err != nil {
		t.Fatalf("failed to replace policies: %v", err)
	}

	result, err := e.Evaluate(context.Background(), BuildInput(testDescription(), "run"))
	if err != nil {
		t.Fatalf("failed to evaluate policies: %v", err)
	}
	if result.Allowed {
		t.Error("expected custom policy to block train_model step")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "no-train-steps" && v.Step == "train_model" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected no-train-steps violation, got %v", result.Violations)
	}
}

func TestReplacePoliciesKeepsBuiltins(t *testing.T) {
	e := newTestEngine(t)

	if err := e.ReplacePolicies(nil); err != nil {
		t.Fatalf("failed to replace policies: %v", err)
	}

	for _, name := range []string{"step-naming", "graph-size", "plugin-coordinates"} {
		if _, err := e.GetPolicy(name); err != nil {
			t.Errorf("built-in policy %s lost after replace: %v", name, err)
		}
	}
}

func TestReplacePoliciesRejectsBadRego(t *testing.T) {
	e := newTestEngine(t)

	bad := Policy{
		Name:    "broken",
		Enabled: true,
		Rego:    "this is not rego",
	}
	if err := e.ReplacePolicies([]Policy{bad}); err == nil {
		t.Error("expected error compiling malformed policy")
	}
}

func TestListPoliciesSorted(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != 3 {
		t.Fatalf("expected 3 built-in policies, got %d", len(policies))
	}
	for i := 1; i < len(policies); i++ {
		if policies[i-1].Name >= policies[i].Name {
			t.Errorf("policies not sorted: %s before %s", policies[i-1].Name, policies[i].Name)
		}
	}
}

func TestBuildInput(t *testing.T) {
	desc := testDescription()
	desc.Graph["evaluate"] = engine.StepSpec{
		Dependencies: []string{"train_model"},
		Raw: engine.Map(map[string]engine.Value{
			"train": engine.List(engine.String("$train_model.model")),
		}),
	}

	input := BuildInput(desc, "run")

	if input.Context == nil || input.Context.Operation != "run" {
		t.Error("expected context operation to be recorded")
	}
	if input.Experiment["step_count"] != 2 {
		t.Errorf("expected step_count 2, got %v", input.Experiment["step_count"])
	}

	tasks, ok := input.Experiment["tasks"].(map[string]interface{})
	if !ok {
		t.Fatal("expected tasks map in input")
	}
	train, ok := tasks["train"].(map[string]interface{})
	if !ok {
		t.Fatal("expected train task entry")
	}
	if train["plugin"] != "builtins.math.add" {
		t.Errorf("unexpected plugin coordinate: %v", train["plugin"])
	}

	graph, ok := input.Experiment["graph"].(map[string]interface{})
	if !ok {
		t.Fatal("expected graph map in input")
	}
	eval, ok := graph["evaluate"].(map[string]interface{})
	if !ok {
		t.Fatal("expected evaluate step entry")
	}
	deps, ok := eval["dependencies"].([]string)
	if !ok || len(deps) != 1 || deps[0] != "train_model" {
		t.Errorf("unexpected dependencies: %v", eval["dependencies"])
	}
}
