package manifest

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// Validate checks that rendered manifest content is a loadable compose file
// and returns the service names it defines, sorted. It runs after rendering
// and before transfer, so a broken template is caught while the remote host
// still runs the previous version.
func Validate(yamlContent string) ([]string, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyTemplate
	}

	project, err := loadProject(yamlContent)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// loadProject loads manifest content through compose-go.
func loadProject(yamlContent string) (*types.Project, error) {
	// Parse YAML into a map first
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewRenderError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewRenderError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("caravel-validate", false)
		opts.SkipValidation = false
		// ${VAR} interpolation is resolved by the compose backend on the
		// host, not here, so leave it untouched.
		opts.SkipInterpolation = true
		// Paths stay relative to the remote application directory.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewRenderError("", err.Error(), ErrNotCompose)
	}

	return project, nil
}
