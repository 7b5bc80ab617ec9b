// Package identity merges author aliases into canonical author identities.
package identity

// AuthorMissingName is the canonical name reported for commits without an author name.
const AuthorMissingName = "<unmatched>"

// Configuration keys mirrored by the viper config loader.
const (
	// ConfigAliasesFile is the path of the alias groups file.
	ConfigAliasesFile = "analysis.aliases_file"
	// ConfigAliasGroups holds inline alias groups.
	ConfigAliasGroups = "analysis.alias_groups"
)
