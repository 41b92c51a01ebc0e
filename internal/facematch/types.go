// Package facematch provides face geometry and roster name helpers shared by
// the detection backends, the stores and the CLI.
package facematch
