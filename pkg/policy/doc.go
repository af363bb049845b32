// Package policy provides Rego-based admission policies for experiment
// descriptions. Policies are evaluated against the description as JSON;
// deny rules produce violations. Built-in policies are embedded and extra
// policy files can be loaded from disk with hot-reload support.
package policy
