package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensandbox/canvas/internal/graph"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/internal/vfs"
)

var buildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Compile a local directory and print its module graph",
	Long: `Compile a directory of components the way the server would, without
contacting it. Prints the reachable modules, the import map and any
diagnostics. Exits non-zero when no entry module is found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, _ := cmd.Flags().GetString("entry")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return runBuild(os.Stdout, args[0], entry, jsonOutput)
	},
}

type buildReport struct {
	Entry       string            `json:"entry"`
	Modules     []buildModule     `json:"modules"`
	ImportMap   map[string]string `json:"importMap"`
	External    []string          `json:"external,omitempty"`
	Diagnostics interface{}       `json:"diagnostics,omitempty"`
}

type buildModule struct {
	Path    string   `json:"path"`
	Bytes   int      `json:"bytes"`
	Imports []string `json:"imports,omitempty"`
	Stub    bool     `json:"stub,omitempty"`
}

func runBuild(w io.Writer, dir, entry string, jsonOutput bool) error {
	files, err := template.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	fsys, err := vfs.Load(files)
	if err != nil {
		return err
	}

	g, err := graph.NewBuilder(transform.New(transform.Options{})).Build(entry, fsys)
	if errors.Is(err, graph.ErrEntryNotFound) {
		return fmt.Errorf("nothing to preview: %w", err)
	}
	if err != nil {
		return err
	}

	asm := preview.NewAssembler(preview.NewBlobStore(""), preview.DefaultCDN())
	defer asm.Release()
	art, err := asm.Assemble(g, 1)
	if err != nil {
		return err
	}

	report := buildReport{Entry: g.Entry, ImportMap: art.ImportMap, External: g.External}
	for _, list := range [][]*graph.ModuleRecord{g.Modules, g.Stubs} {
		for _, m := range list {
			bm := buildModule{Path: m.Path, Bytes: len(m.Code), Stub: m.Stub}
			for _, imp := range m.Imports {
				bm.Imports = append(bm.Imports, fmt.Sprintf("%s (%s)", imp.Specifier, imp.Class))
			}
			report.Modules = append(report.Modules, bm)
		}
	}

	if jsonOutput {
		if len(art.Diagnostics) > 0 {
			report.Diagnostics = art.Diagnostics
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "Entry: %s\n\n", report.Entry)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tBYTES\tIMPORTS")
	for _, m := range report.Modules {
		path := m.Path
		if m.Stub {
			path = warnText(path + " (stub)")
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", path, m.Bytes, len(m.Imports))
	}
	tw.Flush()

	keys := make([]string, 0, len(art.ImportMap))
	for k := range art.ImportMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\nImport map:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %s\n", k, dimText(art.ImportMap[k]))
	}

	if len(art.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n%d diagnostics:\n", len(art.Diagnostics))
		printDiagnostics(art.Diagnostics)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().String("entry", "", "Entry module path (default: first of /App.jsx, /App.tsx, /App.js, /App.ts)")
	buildCmd.Flags().Bool("json", false, "Print the report as JSON")
}
