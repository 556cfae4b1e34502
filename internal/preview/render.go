package preview

import (
	"encoding/json"
	"html/template"
	"io"

	"github.com/opensandbox/canvas/internal/transform"
	"github.com/opensandbox/canvas/pkg/types"
)

// Document is the HTML page that boots an artifact inside the preview frame.
// It mounts the entry module's default export with React and lists the
// artifact's diagnostics in an overlay.
type Document struct {
	Title string
	CDN   CDNPolicy
	// LiveURL, when set, is a websocket the page listens on; it reloads when
	// a message carries a newer revision.
	LiveURL string
}

// bootstrap packages are loaded by the page itself, not by any module.
var bootstrap = []string{"react", "react-dom/client", "react/jsx-runtime"}

var page = template.Must(template.New("preview").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script type="importmap">{{.ImportMap}}</script>
<style>
  body { margin: 0; font-family: system-ui, sans-serif; }
  #canvas-diagnostics { position: fixed; left: 0; right: 0; bottom: 0; margin: 0; padding: 12px;
    max-height: 40vh; overflow: auto; background: #2b0b0b; color: #ffd7d7; font: 12px/1.5 monospace;
    white-space: pre-wrap; }
  #canvas-diagnostics:empty { display: none; }
</style>
</head>
<body>
<div id="root"></div>
<pre id="canvas-diagnostics">{{range .Diagnostics}}{{.}}
{{end}}</pre>
<script type="module">
const overlay = document.getElementById("canvas-diagnostics");
try {
  const [{ default: React }, { createRoot }, mod] = await Promise.all([
    import("react"),
    import("react-dom/client"),
    import({{.Entry}}),
  ]);
  if (typeof mod.default === "function") {
    createRoot(document.getElementById("root")).render(React.createElement(mod.default));
  } else {
    overlay.textContent += {{.EntryPath}} + " has no default export component\n";
  }
} catch (err) {
  overlay.textContent += String((err && err.stack) || err) + "\n";
}
{{if .LiveURL}}
const live = new WebSocket({{.LiveURL}});
live.onmessage = (ev) => {
  if (JSON.parse(ev.data).revision > {{.Revision}}) location.reload();
};
{{end}}
</script>
</body>
</html>
`))

type pageData struct {
	Title       string
	Revision    uint64
	ImportMap   template.HTML
	Diagnostics []string
	Entry       string
	EntryPath   string
	LiveURL     string
}

// Render writes the document for art.
func (d Document) Render(w io.Writer, art *Artifact) error {
	imports := make(map[string]string, len(art.ImportMap)+len(bootstrap))
	for _, spec := range bootstrap {
		imports[spec] = d.CDN.URL(spec)
	}
	for k, v := range art.ImportMap {
		imports[k] = v
	}
	// json.Marshal escapes <, > and &, so the map cannot close the script.
	raw, err := json.Marshal(map[string]any{"imports": imports})
	if err != nil {
		return err
	}

	data := pageData{
		Title:     d.Title,
		Revision:  art.Revision,
		ImportMap: template.HTML(raw),
		Entry:     art.Entry.URL,
		EntryPath: art.Entry.Path,
		LiveURL:   d.LiveURL,
	}
	if data.Title == "" {
		data.Title = "Preview"
	}
	for _, diag := range art.Diagnostics {
		data.Diagnostics = append(data.Diagnostics, transform.Format(diag))
	}
	return page.Execute(w, data)
}

var empty = template.Must(template.New("empty").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { margin: 0; display: grid; place-items: center; min-height: 100vh; font-family: system-ui, sans-serif; color: #666; }
  pre { font: 12px/1.5 monospace; color: #a33; white-space: pre-wrap; }
</style>
</head>
<body>
<main>
<p>{{.Reason}}</p>
{{if .Diagnostics}}<pre>{{range .Diagnostics}}{{.}}
{{end}}</pre>{{end}}
</main>
{{if .LiveURL}}<script type="module">
const live = new WebSocket({{.LiveURL}});
live.onmessage = (ev) => {
  if (JSON.parse(ev.data).revision > {{.Revision}}) location.reload();
};
</script>{{end}}
</body>
</html>
`))

// RenderEmpty writes the placeholder shown while a project has nothing to
// run, such as before an entry file exists.
func (d Document) RenderEmpty(w io.Writer, revision uint64, reason string, diags []types.Diagnostic) error {
	data := struct {
		Title       string
		Reason      string
		Revision    uint64
		Diagnostics []string
		LiveURL     string
	}{Title: d.Title, Reason: reason, Revision: revision, LiveURL: d.LiveURL}
	if data.Title == "" {
		data.Title = "Preview"
	}
	for _, diag := range diags {
		data.Diagnostics = append(data.Diagnostics, transform.Format(diag))
	}
	return empty.Execute(w, data)
}
