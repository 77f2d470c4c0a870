// Package render turns a note into the HTML page returned by the view
// endpoint.
package render

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	apperrors "weakapi/internal/errors"
	"weakapi/internal/model"
)

// Compile-time interface checks.
var (
	_ Renderer = (*Unsafe)(nil)
	_ Renderer = (*Safe)(nil)
)

// Renderer produces the HTML page for a note.
type Renderer interface {
	Render(note *model.Note) (string, error)
}

const (
	pageHead = `<!DOCTYPE html>
<html lang="en">

<head>
    <meta charset="UTF-8">
    <meta http-equiv="X-UA-Compatible" content="IE=edge">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Secret Keeper</title>
</head>

<body>
`
	pageTail = `
</body>

</html>
`
)

// New returns the unsafe renderer when unsafe is set, the safe one otherwise.
func New(unsafe bool) Renderer {
	if unsafe {
		return NewUnsafe()
	}
	return NewSafe()
}

// Unsafe builds the template source from the note text itself, so any
// template actions stored in a note run at render time. Sprig functions
// (env, expandenv, ...) are available to those actions.
type Unsafe struct {
	funcs template.FuncMap
}

// NewUnsafe creates the injectable renderer.
func NewUnsafe() *Unsafe {
	return &Unsafe{funcs: sprig.TxtFuncMap()}
}

// Render implements Renderer.
func (r *Unsafe) Render(note *model.Note) (string, error) {
	source := pageHead +
		"    <h1>" + note.Title + "</h1>\n" +
		"    <p>" + note.Description + "</p>\n" +
		pageTail

	tmpl, err := template.New("note").Funcs(r.funcs).Parse(source)
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrRenderFailed, err.Error())
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return "", apperrors.WithMessage(apperrors.ErrRenderFailed, err.Error())
	}
	return buf.String(), nil
}

var safePage = htmltemplate.Must(htmltemplate.New("note").Parse(pageHead +
	"    <h1>{{ .Title }}</h1>\n" +
	"    <p>{{ .Description }}</p>\n" +
	pageTail))

// Safe binds title and description as data into a fixed template.
type Safe struct {
	tmpl *htmltemplate.Template
}

// NewSafe creates the data-binding renderer.
func NewSafe() *Safe {
	return &Safe{tmpl: safePage}
}

// Render implements Renderer.
func (r *Safe) Render(note *model.Note) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Title       string
		Description string
	}{note.Title, note.Description}
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", apperrors.WithMessage(apperrors.ErrRenderFailed, err.Error())
	}
	return buf.String(), nil
}
