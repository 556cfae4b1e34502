package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opensandbox/canvas/pkg/client"
	"github.com/opensandbox/canvas/pkg/types"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Canvas CLI - Manage live component previews from the command line",
	Long: `Canvas CLI is a command-line tool for the canvas preview server.

It creates projects, edits their files, applies agent tool calls and prints
preview links. The build command compiles a local directory without a server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("CANVAS_API_URL", "http://localhost:8080"), "Canvas API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CANVAS_API_KEY"), "Canvas API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func checkAPIKey() error {
	if apiKey == "" {
		return fmt.Errorf("API key is required. Set CANVAS_API_KEY environment variable or use --api-key flag")
	}
	return nil
}

// newClient checks the API key and returns a client with a request context.
func newClient(timeout time.Duration) (*client.Client, context.Context, context.CancelFunc, error) {
	if err := checkAPIKey(); err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return client.NewClient(baseURL, apiKey), ctx, cancel, nil
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	errLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	warnText = color.New(color.FgYellow).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

// printDiagnostics writes one line per diagnostic. Parse errors are red;
// unresolved and unsupported imports are yellow.
func printDiagnostics(diags []types.Diagnostic) {
	for _, d := range diags {
		loc := d.Path
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Column)
		}
		kind := warnText(string(d.Kind))
		if d.Kind == types.DiagnosticParse {
			kind = errLabel(string(d.Kind))
		}
		fmt.Printf("  %s %s %s\n", kind, loc, d.Message)
	}
}
