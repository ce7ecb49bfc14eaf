package preview

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

// SandboxPolicy is the iframe sandbox for rendered previews. Scripts and forms may
// run, but the document gets an opaque origin so it cannot reach the host page,
// its storage or its cookies.
const SandboxPolicy = "allow-scripts allow-forms"

type Preview struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

func (p Preview) IsEmpty() bool {
	return strings.TrimSpace(p.HTML) == "" && strings.TrimSpace(p.CSS) == "" && strings.TrimSpace(p.JS) == ""
}

const defaultCSS = "body { font-family: system-ui, -apple-system, sans-serif; margin: 0; }"

const defaultHTML = `<div class="min-h-screen bg-gradient-to-br from-blue-50 to-indigo-100 flex items-center justify-center p-8">
    <div class="text-center max-w-2xl">
      <h1 class="text-4xl font-bold text-gray-900 mb-4">Welcome to %s</h1>
      <p class="text-lg text-gray-600 mb-8">Start building your app by chatting with the AI assistant. Try asking to:</p>
      <div class="grid grid-cols-1 md:grid-cols-2 gap-4 text-left">
        <div class="bg-white p-4 rounded-lg shadow-sm">
          <h3 class="font-semibold text-gray-900 mb-2">🎨 Design</h3>
          <p class="text-sm text-gray-600">"Add a navigation bar" or "Make it more colorful"</p>
        </div>
        <div class="bg-white p-4 rounded-lg shadow-sm">
          <h3 class="font-semibold text-gray-900 mb-2">🔧 Features</h3>
          <p class="text-sm text-gray-600">"Create a contact form" or "Add a gallery"</p>
        </div>
        <div class="bg-white p-4 rounded-lg shadow-sm">
          <h3 class="font-semibold text-gray-900 mb-2">📱 Layout</h3>
          <p class="text-sm text-gray-600">"Make it responsive" or "Center the content"</p>
        </div>
        <div class="bg-white p-4 rounded-lg shadow-sm">
          <h3 class="font-semibold text-gray-900 mb-2">✨ Polish</h3>
          <p class="text-sm text-gray-600">"Add animations" or "Improve the typography"</p>
        </div>
      </div>
    </div>
  </div>`

// DefaultPreview is the placeholder artifact every new app starts with.
func DefaultPreview(appName string) Preview {
	return Preview{
		HTML: fmt.Sprintf(defaultHTML, template.HTMLEscapeString(appName)),
		CSS:  defaultCSS,
		JS:   "",
	}
}

// Documents are assembled with text/template: the fragments are code the user asked
// for and are inserted verbatim. Isolation comes from the sandbox, not from escaping.
var (
	previewDocumentTmpl = texttemplate.Must(texttemplate.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>{{.CSS}}</style>
  </head>
  <body>
    {{.HTML}}
    {{if .JS}}<script>{{.JS}}</script>{{end}}
  </body>
</html>`))

	completeDocumentTmpl = texttemplate.Must(texttemplate.New("complete").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    {{if .HasCSS}}<style>{{.CSS}}</style>{{end}}
  </head>
  <body>
    {{.HTML}}
    {{if .HasJS}}<script>{{.JS}}</script>{{end}}
  </body>
</html>`))

	sandboxFrameTmpl = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>html, body { height: 100%; margin: 0; } iframe { width: 100%; height: 100%; border: 0; }</style>
  </head>
  <body>
    <iframe srcdoc="{{.Document}}" sandbox="{{.Sandbox}}" title="App Preview"></iframe>
  </body>
</html>`))
)

type documentData struct {
	Title  string
	HTML   string
	CSS    string
	JS     string
	HasCSS bool
	HasJS  bool
}

func newDocumentData(title string, p Preview) documentData {
	return documentData{
		Title:  template.HTMLEscapeString(title),
		HTML:   p.HTML,
		CSS:    p.CSS,
		JS:     p.JS,
		HasCSS: strings.TrimSpace(p.CSS) != "",
		HasJS:  strings.TrimSpace(p.JS) != "",
	}
}

func render(tmpl *texttemplate.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("error rendering %s template: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}

// PreviewDocument renders the artifact as the document shown in the live preview.
func PreviewDocument(title string, p Preview) (string, error) {
	return render(previewDocumentTmpl, newDocumentData(title, p))
}

// CompleteDocument renders the standalone document offered for download, css and js
// are only embedded when they contain something.
func CompleteDocument(title string, p Preview) (string, error) {
	return render(completeDocumentTmpl, newDocumentData(title, p))
}

// SandboxFrame wraps a rendered document in an iframe that loads it through srcdoc
// under SandboxPolicy.
func SandboxFrame(title, document string) (string, error) {
	var b strings.Builder
	err := sandboxFrameTmpl.Execute(&b, struct {
		Title    string
		Document string
		Sandbox  string
	}{Title: title, Document: document, Sandbox: SandboxPolicy})
	if err != nil {
		return "", fmt.Errorf("error rendering sandbox frame: %w", err)
	}
	return b.String(), nil
}

// ContentSecurityPolicy is sent with documents served directly, so the browser
// applies the same sandbox as the iframe and blocks network access.
func ContentSecurityPolicy() string {
	return "sandbox " + SandboxPolicy + "; default-src 'none'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; img-src data: blob:; font-src data:; form-action 'none'; connect-src 'none'"
}
