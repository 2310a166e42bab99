package handlers

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/recipes/pkg/appdata"
	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
)

func newTestStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Migrate(ctx))
	return store
}

// stepContext parses a one-step recipe and returns the context for its step.
func stepContext(t *testing.T, step string) *recipe.Context {
	t.Helper()

	r, err := recipe.ParseRecipe("<Orchard>" + step + "</Orchard>")
	require.NoError(t, err)
	require.Len(t, r.RecipeSteps, 1)

	return &recipe.Context{ExecutionID: "exec-1", RecipeStep: r.RecipeSteps[0]}
}

func settingValue(t *testing.T, store *stores.SQLiteStore, key string) string {
	t.Helper()

	setting, err := store.GetSetting(context.Background(), key)
	require.NoError(t, err)
	return setting.Value
}

func TestSettingsHandler(t *testing.T) {
	store := newTestStore(t)
	h := NewSettingsHandler(store, zerolog.Nop())

	rc := stepContext(t, `<Settings>
		<SiteSettingsPart PageSize="20" SiteName="Blog"/>
		<CommentSettingsPart Moderate="true"/>
	</Settings>`)

	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.True(t, rc.Executed)

	assert.Equal(t, "20", settingValue(t, store, "SiteSettingsPart.PageSize"))
	assert.Equal(t, "Blog", settingValue(t, store, "SiteSettingsPart.SiteName"))
	assert.Equal(t, "true", settingValue(t, store, "CommentSettingsPart.Moderate"))

	setting, err := store.GetSetting(context.Background(), "SiteSettingsPart.PageSize")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", setting.ExecutionID)
}

func TestSettingsHandlerIgnoresOtherSteps(t *testing.T) {
	store := newTestStore(t)
	h := NewSettingsHandler(store, zerolog.Nop())

	rc := stepContext(t, `<Content><SiteSettingsPart PageSize="20"/></Content>`)
	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.False(t, rc.Executed)

	settings, err := store.ListSettings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestSettingsHandlerEmptyStep(t *testing.T) {
	h := NewSettingsHandler(newTestStore(t), zerolog.Nop())

	rc := stepContext(t, `<Settings/>`)
	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.True(t, rc.Executed)
}

type brokenSettings struct{}

func (brokenSettings) UpsertSetting(context.Context, stores.Setting) error {
	return errors.New("disk full")
}

func (brokenSettings) GetSetting(context.Context, string) (*stores.Setting, error) {
	return nil, errors.New("disk full")
}

func TestSettingsHandlerStoreFailure(t *testing.T) {
	h := NewSettingsHandler(brokenSettings{}, zerolog.Nop())

	rc := stepContext(t, `<Settings><SiteSettingsPart PageSize="20"/></Settings>`)
	err := h.ExecuteRecipeStep(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SiteSettingsPart.PageSize")
	assert.False(t, rc.Executed)
}

func TestMediaHandler(t *testing.T) {
	src := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(src, "/pkg/logo.png", []byte("png"), 0o644))
	require.NoError(t, afero.WriteFile(src, "/pkg/css/site.css", []byte("body{}"), 0o644))

	media := afero.NewMemMapFs()
	h := NewMediaHandler(media, zerolog.Nop())

	rc := stepContext(t, `<Media Folder="theme"/>`)
	rc.Files = appdata.NewFolderFs(src).Files("pkg")

	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.True(t, rc.Executed)

	data, err := afero.ReadFile(media, "/theme/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	data, err = afero.ReadFile(media, "/theme/css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
}

func TestMediaHandlerFailsWhenListingFails(t *testing.T) {
	src := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(src, "/pkg/logo.png", []byte("png"), 0o644))

	media := afero.NewMemMapFs()
	h := NewMediaHandler(media, zerolog.Nop())

	rc := stepContext(t, `<Media/>`)
	rc.Files = appdata.NewFolderFs(unreadableDirFs{src}).Files("pkg")

	err := h.ExecuteRecipeStep(context.Background(), rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.False(t, rc.Executed)

	_, statErr := media.Stat("/logo.png")
	assert.True(t, os.IsNotExist(statErr), "nothing should be copied")
}

// unreadableDirFs fails to open directories.
type unreadableDirFs struct {
	afero.Fs
}

func (u unreadableDirFs) Open(name string) (afero.File, error) {
	if info, err := u.Fs.Stat(name); err == nil && info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EIO}
	}
	return u.Fs.Open(name)
}

func TestMediaHandlerWithoutFiles(t *testing.T) {
	h := NewMediaHandler(afero.NewMemMapFs(), zerolog.Nop())

	rc := stepContext(t, `<Media/>`)
	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.True(t, rc.Executed)
}

// filesOf returns a sequence of in-memory files.
func filesOf(files map[string]string) iter.Seq2[recipe.FileToImport, error] {
	return func(yield func(recipe.FileToImport, error) bool) {
		for name, content := range files {
			f := recipe.FileToImport{
				Path: name,
				Open: func() (io.ReadCloser, error) {
					return io.NopCloser(strings.NewReader(content)), nil
				},
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func TestMediaHandlerRejectsEscapingPaths(t *testing.T) {
	tests := []struct {
		name   string
		folder string
		file   string
	}{
		{"parent file", "", "../secret.txt"},
		{"parent folder", "../outside", "logo.png"},
		{"nested escape", "theme", "../../logo.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := afero.NewMemMapFs()
			h := NewMediaHandler(media, zerolog.Nop())

			rc := stepContext(t, `<Media/>`)
			rc.RecipeStep.Step.CreateAttr("Folder", tt.folder)
			rc.Files = filesOf(map[string]string{tt.file: "x"})

			err := h.ExecuteRecipeStep(context.Background(), rc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "escapes the media folder")
			assert.False(t, rc.Executed)
		})
	}
}

func TestMediaPath(t *testing.T) {
	tests := []struct {
		folder string
		name   string
		want   string
	}{
		{"", "logo.png", "/logo.png"},
		{"theme", "css/site.css", "/theme/css/site.css"},
		{"/theme/", "logo.png", "/theme/logo.png"},
		{`theme\img`, `a\b.png`, "/theme/img/a/b.png"},
		{"theme", "../logo.png", "/logo.png"},
	}

	for _, tt := range tests {
		got, err := mediaPath(tt.folder, tt.name)
		require.NoError(t, err, "%s + %s", tt.folder, tt.name)
		assert.Equal(t, tt.want, got)
	}
}

func TestScriptHandler(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertSetting(context.Background(), stores.Setting{Key: "Site.Name", Value: "Blog"}))

	h := NewScriptHandler(store, time.Second, zerolog.Nop())

	rc := stepContext(t, `<Script Theme="dark"><![CDATA[
		def main():
		    name = setting("Site.Name")
		    set_setting("Site.Title", name + " (" + attrs["Theme"] + ")")
		    set_setting("Site.Pages", len([i for i in range(3)]))
		    if setting("Missing") == None:
		        set_setting("Site.Missing", "none")
		    log("configured " + execution_id)

		main()
	]]></Script>`)

	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.True(t, rc.Executed)

	assert.Equal(t, "Blog (dark)", settingValue(t, store, "Site.Title"))
	assert.Equal(t, "3", settingValue(t, store, "Site.Pages"))
	assert.Equal(t, "none", settingValue(t, store, "Site.Missing"))
}

func TestScriptHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		wantErr string
	}{
		{
			name:    "empty script",
			step:    `<Script/>`,
			wantErr: "script step is empty",
		},
		{
			name:    "syntax error",
			step:    `<Script>this is not starlark</Script>`,
			wantErr: "script failed",
		},
		{
			name:    "runtime error",
			step:    `<Script>fail("Bad schema")</Script>`,
			wantErr: "Bad schema",
		},
		{
			name:    "undefined builtin",
			step:    `<Script>delete_everything()</Script>`,
			wantErr: "undefined: delete_everything",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScriptHandler(newTestStore(t), time.Second, zerolog.Nop())

			rc := stepContext(t, tt.step)
			err := h.ExecuteRecipeStep(context.Background(), rc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.False(t, rc.Executed)
		})
	}
}

func TestScriptHandlerTimeout(t *testing.T) {
	h := NewScriptHandler(newTestStore(t), 50*time.Millisecond, zerolog.Nop())

	rc := stepContext(t, `<Script><![CDATA[
def slow():
    total = 0
    for i in range(100000000):
        total += i
    return total

slow()
]]></Script>`)

	err := h.ExecuteRecipeStep(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.False(t, rc.Executed)
}

func TestScriptHandlerContextCancelled(t *testing.T) {
	h := NewScriptHandler(newTestStore(t), time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := stepContext(t, `<Script><![CDATA[
def slow():
    for i in range(100000000):
        pass

slow()
]]></Script>`)

	err := h.ExecuteRecipeStep(ctx, rc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptHandlerIgnoresOtherSteps(t *testing.T) {
	h := NewScriptHandler(newTestStore(t), 0, zerolog.Nop())
	assert.Equal(t, DefaultScriptTimeout, h.timeout)

	rc := stepContext(t, `<Settings/>`)
	require.NoError(t, h.ExecuteRecipeStep(context.Background(), rc))
	assert.False(t, rc.Executed)
}

func TestDedent(t *testing.T) {
	in := "\n\t\tdef f():\n\t\t    return 1\n\n\t\tf()\n\t"
	want := "\ndef f():\n    return 1\n\nf()\n"
	assert.Equal(t, want, dedent(in))
}
