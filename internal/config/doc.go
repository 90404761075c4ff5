// Package config defines the format-agnostic job model and the shared
// filename and run-option value objects, along with the Loader interface
// for reading jobs from various sources.
//
// The same Files value is handed to both the script generator and the
// result parser, so the two always agree on artifact names. Concrete
// loaders, such as for HCL and YAML, are provided in separate packages.
package config
