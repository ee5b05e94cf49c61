// Package core holds the labelwatch domain types, configuration, error codes
// and the logging and metrics contracts shared by every other package. It
// must not import any adapter or transport package.
package core
