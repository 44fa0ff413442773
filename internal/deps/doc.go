// Package deps resolves the external binaries the pipeline shells out to and
// reports which are missing.
package deps
