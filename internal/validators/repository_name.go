// Package validators provides validation functions for backup target entities.
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minRepositoryNameLength = 2
	maxRepositoryNameLength = 256
)

// Repository name components: lowercase alphanumeric separated by single
// dots, underscores, double underscores, or hyphens. Namespaces separated
// by slashes follow the same rules.
var repositoryNamePattern = regexp.MustCompile(
	`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`,
)

// ValidateRepositoryName validates an ECR repository name.
// Returns the validated name (trimmed) and an error if validation fails.
//
// Format requirements:
//   - 2-256 characters
//   - Lowercase letters, digits, and separators (., _, -)
//   - Separators may not lead, trail, or repeat within a path component
//   - Optional namespace components separated by '/'
//
// Examples of valid names:
//   - backups
//   - team-a/s3-backups
//   - org/nested/archive_store
//
// Examples of invalid names:
//   - Backups (uppercase)
//   - -backups (leading separator)
//   - team//backups (empty path component)
func ValidateRepositoryName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("repository name cannot be empty")
	}

	if len(name) < minRepositoryNameLength {
		return "", fmt.Errorf("repository name must be at least %d characters long", minRepositoryNameLength)
	}
	if len(name) > maxRepositoryNameLength {
		return "", fmt.Errorf("repository name exceeds maximum length of %d characters", maxRepositoryNameLength)
	}

	if !repositoryNamePattern.MatchString(name) {
		return "", fmt.Errorf(
			"repository name '%s' is invalid. Names must be lowercase alphanumeric, "+
				"with path components separated by '/' and single '.', '_' or '-' separators inside them",
			name,
		)
	}

	return name, nil
}

// IsValidRepositoryName checks if a repository name is valid.
// This is a convenience wrapper around ValidateRepositoryName for boolean checks.
func IsValidRepositoryName(name string) bool {
	_, err := ValidateRepositoryName(name)
	return err == nil
}
