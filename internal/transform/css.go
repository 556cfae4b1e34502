package transform

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/opensandbox/canvas/pkg/types"
)

// transformCSS validates a stylesheet and wraps it in a module that injects a
// style element when imported. The module default-exports the CSS text.
func (t *Transformer) transformCSS(path, source string) *Result {
	out := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderCSS,
		Sourcefile: path,
		Charset:    api.CharsetUTF8,
		LogLevel:   api.LogLevelSilent,
	})
	if len(out.Errors) > 0 {
		diags := make([]types.Diagnostic, 0, len(out.Errors))
		for _, m := range out.Errors {
			diags = append(diags, diagnostic(path, m))
		}
		r := failed(path, diags...)
		r.Style = true
		return r
	}

	code := fmt.Sprintf(`const css = %s;
const style = document.createElement("style");
style.setAttribute("data-canvas-path", %s);
style.textContent = css;
document.head.appendChild(style);
export default css;
`, jsString(string(out.Code)), jsString(path))

	return &Result{Path: path, Code: code, Style: true}
}
