// Package hcl provides the HCL implementation of config.Loader. It decodes
// `job` blocks and turns the free-form `parameters` and `settings`
// attributes into ordered argument trees, keeping the key order written in
// the file.
package hcl
