// Package render materializes per-environment working directories from
// template sources. Provisioner and playbook sources are written as
// templates so a single source tree can serve many environments.
package render

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/openlift/openlift/pkg/environment"
)

// TemplateExt marks files that are rendered rather than copied.
const TemplateExt = ".tmpl"

// Data is the rendering context exposed to templates.
type Data struct {
	// Name is the environment name.
	Name string

	// Address is the instance address, empty before provisioning.
	Address string

	// SSHUser is the remote user from the environment's credentials.
	SSHUser string

	// SSHPort is the remote SSH port.
	SSHPort int

	// Metadata is the environment's free-form metadata.
	Metadata map[string]string
}

// DataFor builds the template context from an environment.
func DataFor(env environment.Environment) Data {
	meta := make(map[string]string, len(env.Metadata))
	for k, v := range env.Metadata {
		meta[k] = v
	}
	return Data{
		Name:     env.Name.String(),
		Address:  env.Outputs.InstanceAddress,
		SSHUser:  env.SSH.User,
		SSHPort:  env.SSH.Port,
		Metadata: meta,
	}
}

// Renderer produces an environment's working directory from a source tree.
type Renderer interface {
	// Render walks sourceDir and writes the result under destDir.
	// Files ending in .tmpl are executed as templates with the
	// environment's data and written without the extension. Everything
	// else is copied verbatim.
	Render(sourceDir, destDir string, env environment.Environment) error
}

// RenderError reports which source file failed and why.
type RenderError struct {
	Source string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Source, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// TemplateRenderer implements Renderer with text/template.
type TemplateRenderer struct{}

// NewTemplateRenderer creates a renderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(sourceDir, destDir string, env environment.Environment) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return &RenderError{Source: sourceDir, Err: err}
	}
	if !info.IsDir() {
		return &RenderError{Source: sourceDir, Err: fmt.Errorf("not a directory")}
	}

	data := DataFor(env)

	return filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &RenderError{Source: path, Err: err}
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return &RenderError{Source: path, Err: err}
		}
		target := filepath.Join(destDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if strings.HasSuffix(path, TemplateExt) {
			return r.renderFile(path, strings.TrimSuffix(target, TemplateExt), data)
		}
		return copyFile(path, target)
	})
}

func (r *TemplateRenderer) renderFile(source, target string, data Data) error {
	tmpl, err := template.New(filepath.Base(source)).Option("missingkey=error").ParseFiles(source)
	if err != nil {
		return &RenderError{Source: source, Err: err}
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &RenderError{Source: source, Err: err}
	}
	defer out.Close()

	if err := tmpl.Execute(out, data); err != nil {
		return &RenderError{Source: source, Err: err}
	}

	log.Debug().Str("source", source).Str("target", target).Msg("rendered template")
	return nil
}

func copyFile(source, target string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return &RenderError{Source: source, Err: err}
	}

	info, err := os.Stat(source)
	if err != nil {
		return &RenderError{Source: source, Err: err}
	}

	if err := os.WriteFile(target, data, info.Mode().Perm()); err != nil {
		return &RenderError{Source: source, Err: err}
	}
	return nil
}
