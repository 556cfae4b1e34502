package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensandbox/canvas/internal/vfs"
	"github.com/opensandbox/canvas/pkg/types"
)

func editor(cmd, path string) types.ToolCall {
	return types.ToolCall{Tool: types.ToolEditor, Command: cmd, Path: path}
}

func TestApplyIsOneBatch(t *testing.T) {
	fsys := vfs.New()
	var sets []vfs.ChangeSet
	fsys.Subscribe(func(cs vfs.ChangeSet) { sets = append(sets, cs) })

	app := editor("create", "/App.jsx")
	app.FileText = "import Button from './components/Button'\n"
	button := editor("create", "/components/Button.jsx")
	button.FileText = "export default function Button() {}\n"

	results := Apply(fsys, app, button)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.OK, r.Error)
	}
	assert.Equal(t, "created /App.jsx", results[0].Output)
	require.Len(t, sets, 1)
	assert.Len(t, sets[0], 3)
}

func TestStrReplace(t *testing.T) {
	fsys := vfs.New()
	require.NoError(t, fsys.Create("/App.jsx", "const a = 1\nconst b = 1\n"))

	call := editor("str_replace", "/App.jsx")
	call.OldStr = "const a = 1"
	call.NewStr = "const a = 2"
	res := Apply(fsys, call)[0]
	require.True(t, res.OK, res.Error)
	got, _ := fsys.Read("/App.jsx")
	assert.Equal(t, "const a = 2\nconst b = 1\n", got)

	call.OldStr = "const "
	call.NewStr = "let "
	res = Apply(fsys, call)[0]
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, ErrAmbiguous.Error())
	assert.Contains(t, res.Error, "2 matches")
	got, _ = fsys.Read("/App.jsx")
	assert.Equal(t, "const a = 2\nconst b = 1\n", got)

	call.OldStr = "nothing here"
	res = Apply(fsys, call)[0]
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "not found")
}

func TestInsert(t *testing.T) {
	fsys := vfs.New()
	require.NoError(t, fsys.Create("/a.js", "one\ntwo"))

	call := editor("insert", "/a.js")
	call.InsertLine = 1
	call.NewStr = "one and a half"
	require.True(t, Apply(fsys, call)[0].OK)

	call.InsertLine = 0
	call.NewStr = "zero"
	require.True(t, Apply(fsys, call)[0].OK)

	got, _ := fsys.Read("/a.js")
	assert.Equal(t, "zero\none\none and a half\ntwo", got)

	call.InsertLine = 99
	assert.False(t, Apply(fsys, call)[0].OK)
}

func TestView(t *testing.T) {
	fsys := vfs.New()
	require.NoError(t, fsys.Create("/components/Card.jsx", "a\nb\nc"))

	res := Apply(fsys, editor("view", "/components/Card.jsx"))[0]
	require.True(t, res.OK)
	assert.Equal(t, "1\ta\n2\tb\n3\tc\n", res.Output)

	call := editor("view", "/components/Card.jsx")
	call.ViewRange = []int{2, -1}
	assert.Equal(t, "2\tb\n3\tc\n", Apply(fsys, call)[0].Output)

	res = Apply(fsys, editor("view", "/"))[0]
	assert.Equal(t, "components/\n", res.Output)
}

func TestFileManager(t *testing.T) {
	fsys := vfs.New()
	require.NoError(t, fsys.Create("/Button.jsx", "b"))
	require.NoError(t, fsys.Create("/ui/Button.jsx", "taken"))

	rename := types.ToolCall{Tool: types.ToolFileManager, Command: "rename", Path: "/Button.jsx", NewPath: "/components/ui/PrimaryButton.jsx"}
	res := Apply(fsys, rename)[0]
	require.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"/Button.jsx", "/components/ui/PrimaryButton.jsx"}, res.Paths)
	got, err := fsys.Read("/components/ui/PrimaryButton.jsx")
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.False(t, fsys.Exists("/Button.jsx"))

	// The intermediate /ui/Button.jsx is taken, so the rename happens first.
	require.NoError(t, fsys.Create("/Button.jsx", "again"))
	rename.NewPath = "/ui/Other.jsx"
	res = Apply(fsys, rename)[0]
	require.True(t, res.OK, res.Error)
	got, _ = fsys.Read("/ui/Other.jsx")
	assert.Equal(t, "again", got)

	rename.Path, rename.NewPath = "/ui/Other.jsx", "/ui/Button.jsx"
	res = Apply(fsys, rename)[0]
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "already exists")

	del := types.ToolCall{Tool: types.ToolFileManager, Command: "delete", Path: "/ui"}
	require.True(t, Apply(fsys, del)[0].OK)
	assert.False(t, fsys.Exists("/ui/Other.jsx"))
}

func TestUnknownCommand(t *testing.T) {
	res := Apply(vfs.New(), types.ToolCall{Tool: "shell", Command: "exec", Path: "/"})[0]
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "unknown command")
}

func TestMove(t *testing.T) {
	fsys := vfs.New()
	require.NoError(t, fsys.Create("/Card.jsx", "card"))
	require.NoError(t, fsys.Create("/Other.jsx", "other"))

	require.NoError(t, Move(fsys, "/Card.jsx", "/components/Card.jsx"))
	got, err := fsys.Read("/components/Card.jsx")
	require.NoError(t, err)
	assert.Equal(t, "card", got)

	assert.ErrorIs(t, Move(fsys, "/Other.jsx", "/components/Card.jsx"), vfs.ErrPathConflict)
	assert.ErrorIs(t, Move(fsys, "/missing.jsx", "/x.jsx"), vfs.ErrNotFound)
	assert.ErrorIs(t, Move(fsys, "/components", "/components/inner"), vfs.ErrInvalidOperation)
	assert.ErrorIs(t, Move(fsys, "../x", "/y"), vfs.ErrInvalidPath)
}
