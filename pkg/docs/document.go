package docs

import (
	"time"
)

// UpdatedAtField is the document field that records the last reconciliation
// time. It is stamped on every pass whether or not any other field changed.
const UpdatedAtField = "updated_at"

// Project describes the identity of a codebase.
type Project struct {
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Purpose     string    `json:"purpose,omitempty"`
	Repository  string    `json:"repository,omitempty"`
	License     string    `json:"license,omitempty"`
	Team        []string  `json:"team,omitempty"`
	Goals       []string  `json:"goals,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Stack describes the technology stack detected in a codebase.
type Stack struct {
	Language        string    `json:"language,omitempty"`
	LanguageVersion string    `json:"language_version,omitempty"`
	Runtime         string    `json:"runtime,omitempty"`
	PackageManager  string    `json:"package_manager,omitempty"`
	Frameworks      []string  `json:"frameworks,omitempty"`
	BuildTools      []string  `json:"build_tools,omitempty"`
	Databases       []string  `json:"databases,omitempty"`
	Tooling         []string  `json:"tooling,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// Directory describes the role of one top-level directory. Directories are
// matched across reconciliation passes by Path, never by position.
type Directory struct {
	Path        string `json:"path"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

// Architecture describes the structural layout of a codebase.
type Architecture struct {
	Style       string      `json:"style,omitempty"`
	EntryPoints []string    `json:"entry_points,omitempty"`
	Directories []Directory `json:"directories,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitzero"`
}

// Constraints describes rules the codebase is expected to follow.
type Constraints struct {
	MustUse     []string  `json:"must_use,omitempty"`
	MustAvoid   []string  `json:"must_avoid,omitempty"`
	Preferences []string  `json:"preferences,omitempty"`
	Performance string    `json:"performance,omitempty"`
	Security    string    `json:"security,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// DirectoryKeyField is the stable key used to match architecture directory
// entries across passes.
const DirectoryKeyField = "path"
