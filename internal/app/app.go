package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "serve":
		return runServe(args[1:])
	case "health":
		return runHealth(args[1:])
	case "translate":
		return runTranslate(args[1:])
	case "languages":
		return runLanguages(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "audit":
		return runAudit(args[1:])
	case "hash-key":
		return runHashKey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "mtgate CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  mtgate <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve      Start the translation API server")
	fmt.Fprintln(os.Stderr, "  health     Verify engine readiness and audit database connectivity")
	fmt.Fprintln(os.Stderr, "  translate  Translate one request file through the configured engine")
	fmt.Fprintln(os.Stderr, "  languages  List configured language pairs and known locales")
	fmt.Fprintln(os.Stderr, "  validate   Validate translate request JSON files against the request schema")
	fmt.Fprintln(os.Stderr, "  audit      Inspect or purge the translation job audit table")
	fmt.Fprintln(os.Stderr, "  hash-key   Print the bcrypt hash of an API key for API_KEY_HASHES")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"mtgate <command> -h\" for command-specific flags.")
}
