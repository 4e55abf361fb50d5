// Package cmd implements the permafrost CLI: the serve command that
// runs the server, the kv command group for talking to one, and the
// version command. Configuration comes from flags, PERMAFROST_*
// environment variables and .env files.
package cmd
