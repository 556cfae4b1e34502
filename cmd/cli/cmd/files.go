package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage files in a project",
	Long:  `Read, write, list, move and delete files in a project. Every change
recompiles the project's preview.`,
}

var catCmd = &cobra.Command{
	Use:   "cat <project-id> <path>",
	Short: "Read a file from a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		projectID := args[0]
		path := args[1]

		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		content, err := c.ReadFile(ctx, projectID, path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		fmt.Print(content)
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <project-id> <path> <content>",
	Short: "Write content to a file in a project",
	Long: `Write content to a file. Use - to read from stdin.
Example: canvas files write abc123 /components/Card.jsx "export default () => null"
         cat Card.jsx | canvas files write abc123 /components/Card.jsx -`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {

		projectID := args[0]
		path := args[1]
		content := args[2]

		// Read from stdin if content is "-"
		if content == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read from stdin: %w", err)
			}
			content = string(data)
		}

		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		revision, err := c.WriteFile(ctx, projectID, path, content)
		if err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}

		fmt.Printf("%s File written: %s (revision %d)\n", okMark, path, revision)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <project-id> <path>",
	Short: "List files in a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		projectID := args[0]
		path := args[1]

		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		files, err := c.ListDir(ctx, projectID, path)
		if err != nil {
			return fmt.Errorf("failed to list directory: %w", err)
		}

		if len(files) == 0 {
			fmt.Println("(empty directory)")
			return nil
		}

		longFormat, _ := cmd.Flags().GetBool("long")
		if longFormat {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, f := range files {
				typ := "-"
				if f.IsDir {
					typ = "d"
				}

				fmt.Fprintf(w, "%s\t%d\t%s\n", typ, f.Size, f.Name)
			}
			w.Flush()
		} else {
			for _, f := range files {
				if f.IsDir {
					fmt.Printf("%s/\n", f.Name)
				} else {
					fmt.Println(f.Name)
				}
			}
		}

		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <project-id> <path>",
	Short: "Create a directory in a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		projectID := args[0]
		path := args[1]

		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.MakeDir(ctx, projectID, path); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		fmt.Printf("%s Directory created: %s\n", okMark, path)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <project-id> <path>",
	Short: "Remove a file or directory from a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		projectID := args[0]
		path := args[1]

		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.RemoveFile(ctx, projectID, path); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}

		fmt.Printf("%s Removed: %s\n", okMark, path)
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <project-id> <from> <to>",
	Short: "Move or rename a file or directory",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.MoveFile(ctx, args[0], args[1], args[2]); err != nil {
			return fmt.Errorf("failed to move file: %w", err)
		}

		fmt.Printf("%s Moved: %s -> %s\n", okMark, args[1], args[2])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.AddCommand(catCmd)
	filesCmd.AddCommand(writeCmd)
	filesCmd.AddCommand(lsCmd)
	filesCmd.AddCommand(mkdirCmd)
	filesCmd.AddCommand(rmCmd)
	filesCmd.AddCommand(mvCmd)

	lsCmd.Flags().BoolP("long", "l", false, "Use long listing format")
}
