package engine

import (
	"sort"

	"github.com/rs/zerolog"
)

// ReconcileGlobalParameters reconciles the externally supplied global
// parameter values against the experiment's parameter specification,
// mutating globals in place. After a successful return every declared name
// carries a value and no undeclared name remains; extraneous names are
// dropped with a warning. Missing required parameters are collected and
// reported in one batched error.
func ReconcileGlobalParameters(spec ParameterSpec, globals map[string]Value, logger zerolog.Logger) error {
	declared := make(map[string]bool)
	var missing []string

	if spec.Mapping {
		for name, entry := range spec.Entries {
			declared[name] = true
			if _, ok := globals[name]; ok {
				continue
			}
			if entry.HasDefault {
				globals[name] = entry.Default
				continue
			}
			missing = append(missing, name)
		}
	} else {
		for _, name := range spec.Names {
			declared[name] = true
			if _, ok := globals[name]; !ok {
				missing = append(missing, name)
			}
		}
	}

	var extraneous []string
	for name := range globals {
		if !declared[name] {
			extraneous = append(extraneous, name)
		}
	}
	sort.Strings(extraneous)
	for _, name := range extraneous {
		logger.Warn().
			Str("parameter", name).
			Msg("Dropping global parameter not declared by the experiment")
		delete(globals, name)
	}

	if len(missing) > 0 {
		return newMissingParametersError(missing)
	}

	return nil
}
