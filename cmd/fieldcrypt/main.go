// fieldcrypt is the operator tool for the field encryption layer: it
// generates keys, encrypts and decrypts values and records, validates
// schema files and queries the audit trail.
//
// Configuration comes from the environment (ENCRYPTION_KEY, USE_ENCRYPTION,
// ...) or from a YAML file given with --config.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

var version = "dev"

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(a *app, args []string) error
}

var commands = []command{
	{"keygen", "Generate an encryption key", (*app).keygen},
	{"encrypt", "Encrypt values given as arguments", (*app).encrypt},
	{"decrypt", "Decrypt tokens given as arguments", (*app).decrypt},
	{"inspect", "Describe tokens without decrypting them", (*app).inspect},
	{"encrypt-record", "Encrypt a JSON record read from stdin", (*app).encryptRecord},
	{"decrypt-record", "Decrypt a JSON record read from stdin", (*app).decryptRecord},
	{"schema", "Print or validate the field schema", (*app).schema},
	{"init", "Write a configuration file", (*app).initConfig},
	{"audit", "Query, export or purge stored audit events", (*app).audit},
	{"health", "Check that the key loads and the audit store is reachable", (*app).health},
	{"version", "Show version information", (*app).printVersion},
}

func main() {
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func (a *app) run(args []string) error {
	if len(args) < 1 {
		a.printUsage()
		return errUsage
	}
	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		a.printUsage()
		return nil
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(a, args[1:])
		}
	}
	fmt.Fprintf(a.stderr, "Unknown command: %s\n", name)
	a.printUsage()
	return errUsage
}

func (a *app) printUsage() {
	fmt.Fprintf(a.stderr, "Usage: fieldcrypt <command> [options]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(a.stderr, "  %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(a.stderr, "\nRun 'fieldcrypt <command> --help' for help on a specific command.\n")
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses args and turns --help into a nil error with no work done.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *app) printVersion(args []string) error {
	fmt.Fprintf(a.stdout, "fieldcrypt version %s\n", version)
	return nil
}
