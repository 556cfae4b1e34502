package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensandbox/canvas/pkg/client"
)

var previewCmd = &cobra.Command{
	Use:   "preview <project-id>",
	Short: "Print a project's preview URL and build status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		tok, err := c.CreatePreviewToken(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to create preview token: %w", err)
		}
		fmt.Printf("Preview: %s\n", tok.URL)
		fmt.Printf("  Expires: %s\n", time.Unix(tok.ExpiresAt, 0).Format(time.RFC3339))

		art, err := c.GetArtifact(ctx, args[0])
		var apiErr *client.APIError
		switch {
		case err == nil:
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity:
			fmt.Println(warnText("  Nothing to preview yet: add an App component."))
			return nil
		default:
			return fmt.Errorf("failed to get artifact: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(art, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("  Revision: %d\n", art.Revision)
		fmt.Printf("  Entry: %s\n", art.Entry.Path)
		fmt.Printf("  Modules: %d\n", len(art.Blobs))
		printDiagnostics(art.Diagnostics)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().Bool("json", false, "Print the artifact as JSON")
}
