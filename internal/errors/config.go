package errors

import (
	"fmt"
)

// ConfigError is raised for malformed config, a dependency cycle, a
// duplicate check name, an unknown dependency, or an unreadable config file
// (spec.md §7). It always aborts the current project before any check runs.
type ConfigError struct {
	*VerifyError
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message:  message,
			ExitCode: ExitConfigError,
		},
	}
}

// NewDuplicateCheckError reports two checks sharing a name.
func NewDuplicateCheckError(name string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("duplicate check name %q", name),
			Context: &ErrorContext{
				Operation: "Building check graph",
				Component: "Graph builder",
				Details:   map[string]interface{}{"name": name},
				Suggestions: []string{
					"Rename one of the two checks with this name",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}

// NewUnknownDependencyError reports a depends_on entry that does not
// resolve to any check in the project.
func NewUnknownDependencyError(check, dependency string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("check %q depends on unknown check %q", check, dependency),
			Context: &ErrorContext{
				Operation: "Building check graph",
				Component: "Graph builder",
				Details:   map[string]interface{}{"check": check, "dependency": dependency},
				Suggestions: []string{
					"Check for a typo in depends_on",
					"Make sure the dependency is defined in the same verify.yaml",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}

// NewCycleError reports a dependency cycle, naming the minimal cycle found.
func NewCycleError(cycle []string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("dependency cycle detected: %v", cycle),
			Context: &ErrorContext{
				Operation: "Building check graph",
				Component: "Graph builder",
				Details:   map[string]interface{}{"cycle": cycle},
				Suggestions: []string{
					"Break the cycle by removing or redirecting one depends_on entry",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}

// NewConfigFileError is raised when verify.yaml cannot be read or parsed.
func NewConfigFileError(path string, cause error) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("failed to load configuration file: %s", path),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Loading configuration",
				Component: "Config file",
				Details:   map[string]interface{}{"file_path": path},
				Suggestions: []string{
					"Check that the file exists and is readable",
					"Validate YAML syntax",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}

// NewUnknownCheckError reports a `verify run`/`status` target that
// does not name any check in the project.
func NewUnknownCheckError(name string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("no check named %q in this project", name),
			Context: &ErrorContext{
				Operation: "Resolving command-line targets",
				Component: "Graph builder",
				Details:   map[string]interface{}{"name": name},
				Suggestions: []string{
					"Check for a typo in the target name",
					"Run `verify status` to list known check names",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}

// NewSubProjectCycleError reports a re-entered canonical sub-project path.
func NewSubProjectCycleError(path string) *ConfigError {
	return &ConfigError{
		VerifyError: &VerifyError{
			Message: fmt.Sprintf("sub-project cycle detected: %s was already visited in this run", path),
			Context: &ErrorContext{
				Operation: "Resolving sub-project",
				Component: "Sub-project resolver",
				Details:   map[string]interface{}{"path": path},
				Suggestions: []string{
					"Check for a path reference that loops back to an ancestor project",
				},
			},
			ExitCode: ExitConfigError,
		},
	}
}
