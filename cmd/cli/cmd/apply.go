package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensandbox/canvas/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply <project-id> [file]",
	Short: "Apply agent tool calls to a project",
	Long: `Apply a batch of text-editor tool calls read from a JSON file, or stdin
when no file is given. The input is either an array of calls or an object
with a "calls" array. The batch recompiles the preview once.
Example: echo '[{"command":"create","path":"/App.jsx","file_text":"..."}]' | canvas apply abc123`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 2 {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		calls, err := readToolCalls(in)
		if err != nil {
			return err
		}

		c, ctx, cancel, err := newClient(60 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		resp, err := c.ApplyToolCalls(ctx, args[0], calls)
		if err != nil {
			return fmt.Errorf("failed to apply tool calls: %w", err)
		}

		failed := 0
		for i, r := range resp.Results {
			if r.OK {
				fmt.Printf("%s %s %s\n", okMark, calls[i].Command, calls[i].Path)
				if r.Output != "" {
					fmt.Println(dimText(r.Output))
				}
				continue
			}
			failed++
			fmt.Printf("%s %s %s: %s\n", errLabel("✗"), calls[i].Command, calls[i].Path, r.Error)
		}
		fmt.Printf("Revision %d\n", resp.Revision)
		printDiagnostics(resp.Diagnostics)

		if failed > 0 {
			return fmt.Errorf("%d of %d tool calls failed", failed, len(calls))
		}
		return nil
	},
}

func readToolCalls(r io.Reader) ([]types.ToolCall, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool calls: %w", err)
	}
	var calls []types.ToolCall
	if err := json.Unmarshal(data, &calls); err == nil {
		return calls, nil
	}
	var req types.ToolCallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse tool calls: %w", err)
	}
	if len(req.Calls) == 0 {
		return nil, fmt.Errorf("no tool calls in input")
	}
	return req.Calls, nil
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
