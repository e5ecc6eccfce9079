// Package build provides build information that is linked into the application. Other
// packages within the project can use this information in logs etc..
package build

var (
	// Version is the build version of the binary (e.g. v0.1.0 or git describe output).
	Version = "dev"

	// Commit is the git commit SHA the binary was built from.
	Commit = "none"

	// Date is the date the binary was built on.
	Date = "unknown"

	// ProjectName is used for traces, metrics and the version command output.
	ProjectName = "recordrelay"

	// MinimumSupportedDatastoreSchemaRevision is the oldest goose migration a SQL
	// datastore must be at for the server to report itself ready.
	MinimumSupportedDatastoreSchemaRevision int64 = 1
)
