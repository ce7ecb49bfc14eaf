package preview

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my-app--v2-", SanitizeFilename("My App (v2)"))
	assert.Equal(t, "slug", BaseFilename("Name", "slug"))
	assert.Equal(t, "my-app", BaseFilename("My App", ""))
}

func TestProjectFiles(t *testing.T) {
	files := ProjectFiles("My App", "my-app", Preview{HTML: "<p></p>", CSS: " ", JS: "x()"})

	require.Len(t, files, 2)
	assert.Equal(t, File{Name: "my-app.html", ContentType: TypeHTML, Content: "<p></p>"}, files[0])
	assert.Equal(t, File{Name: "my-app.js", ContentType: TypeJavaScript, Content: "x()"}, files[1])
}

func TestDownloadFiles(t *testing.T) {
	files, err := DownloadFiles("Shop", "shop", Preview{HTML: "<main></main>", CSS: "main{}", JS: ""})
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "shop.html", files[0].Name)
	assert.Contains(t, files[0].Content, "<style>main{}</style>")
	assert.Equal(t, "shop.css", files[1].Name)

	files, err = DownloadFiles("Shop", "shop", Preview{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestZipArchive(t *testing.T) {
	data, err := ZipArchive([]File{
		{Name: "a.html", Content: "<p>a</p>"},
		{Name: "a.css", Content: "p{}"},
	})
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)

	f, err := r.File[1].Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)

	assert.Equal(t, "a.css", r.File[1].Name)
	assert.Equal(t, "p{}", string(content))
}
