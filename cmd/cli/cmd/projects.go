package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/pkg/types"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project", "p"},
	Short:   "Manage projects",
	Long:    `Create, list, inspect, snapshot and delete projects.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project",
	Long: `Create a project from a template, or upload a local directory with --dir.
Example: canvas projects create --name demo --template react
         canvas projects create --name demo --dir ./my-components`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		tmpl, _ := cmd.Flags().GetString("template")
		dir, _ := cmd.Flags().GetString("dir")
		metadata, _ := cmd.Flags().GetStringToString("metadata")

		cfg := types.ProjectConfig{Name: name, Template: tmpl, Metadata: metadata}
		if dir != "" {
			files, err := template.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", dir, err)
			}
			cfg.Files = files
		}

		c, ctx, cancel, err := newClient(60 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		p, err := c.CreateProject(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		fmt.Printf("%s Project created: %s\n", okMark, p.ID)
		fmt.Printf("  Name: %s\n", p.Name)
		if p.Template != "" {
			fmt.Printf("  Template: %s\n", p.Template)
		}
		fmt.Printf("  Revision: %d\n", p.Revision)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		projects, err := c.ListProjects(ctx)
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}

		if len(projects) == 0 {
			fmt.Println("No projects found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tREVISION\tUPDATED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				p.ID, p.Name, p.Status, p.Revision, p.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()

		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Get project details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		p, err := c.GetProject(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(p, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Project: %s\n", p.ID)
		fmt.Printf("  Name: %s\n", p.Name)
		fmt.Printf("  Status: %s\n", p.Status)
		fmt.Printf("  Revision: %d\n", p.Revision)
		if p.Template != "" {
			fmt.Printf("  Template: %s\n", p.Template)
		}
		fmt.Printf("  Created: %s\n", p.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Updated: %s\n", p.UpdatedAt.Format(time.RFC3339))
		for k, v := range p.Metadata {
			fmt.Printf("  %s: %s\n", k, v)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <project-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(30 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.DeleteProject(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}

		fmt.Printf("%s Project deleted: %s\n", okMark, args[0])
		return nil
	},
}

var hibernateCmd = &cobra.Command{
	Use:   "hibernate <project-id>",
	Short: "Save a project and release its session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(60 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.HibernateProject(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to hibernate project: %w", err)
		}

		fmt.Printf("%s Project hibernated: %s\n", okMark, args[0])
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <project-id>",
	Short: "Print every file of a project as JSON",
	Long: `Print a project's files as a JSON object keyed by path. With --restore,
read such an object from stdin and replace the project's files with it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := newClient(60 * time.Second)
		if err != nil {
			return err
		}
		defer cancel()

		restore, _ := cmd.Flags().GetBool("restore")
		if restore {
			var files map[string]string
			if err := json.NewDecoder(os.Stdin).Decode(&files); err != nil {
				return fmt.Errorf("failed to read snapshot from stdin: %w", err)
			}
			if err := c.PutSnapshot(ctx, args[0], files); err != nil {
				return fmt.Errorf("failed to restore snapshot: %w", err)
			}
			fmt.Printf("%s Restored %d files\n", okMark, len(files))
			return nil
		}

		files, err := c.GetSnapshot(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get snapshot: %w", err)
		}
		data, _ := json.MarshalIndent(files, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)

	projectsCmd.AddCommand(createCmd)
	projectsCmd.AddCommand(listCmd)
	projectsCmd.AddCommand(getCmd)
	projectsCmd.AddCommand(deleteCmd)
	projectsCmd.AddCommand(hibernateCmd)
	projectsCmd.AddCommand(snapshotCmd)

	createCmd.Flags().String("name", "", "Project name")
	createCmd.Flags().String("template", "", "Starter template (see 'canvas templates list')")
	createCmd.Flags().String("dir", "", "Local directory to upload as the project's files")
	createCmd.Flags().StringToString("metadata", nil, "Metadata key=value pairs")

	getCmd.Flags().Bool("json", false, "Output as JSON")
	snapshotCmd.Flags().Bool("restore", false, "Replace the project's files with a snapshot read from stdin")
}
