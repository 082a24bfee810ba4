// Package template provides named step-list templates stored as YAML
// documents under a base URL (file, memory, s3, gs - anything afs supports).
package template

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"

	"github.com/stepflow/stepflow/model"
)

// Template is a reusable, named step sequence.
type Template struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []model.StepDefinition `json:"steps" yaml:"steps"`
}

// Service loads templates by name with an in-memory cache. Refresh drops a
// cached copy so the next lookup reloads from storage; Upsert installs a
// definition directly, which is how tests and embedded deployments seed
// templates without touching a filesystem.
type Service struct {
	fs      afs.Service
	baseURL string
	cache   map[string]*Template
	mux     sync.RWMutex
}

// New creates a template service rooted at baseURL.
func New(baseURL string) *Service {
	return &Service{
		fs:      afs.New(),
		baseURL: baseURL,
		cache:   map[string]*Template{},
	}
}

// Template returns the named template, loading and caching it on first use.
func (s *Service) Template(ctx context.Context, name string) (*Template, error) {
	if name == "" {
		return nil, fmt.Errorf("template name cannot be empty")
	}
	s.mux.RLock()
	cached, ok := s.cache[name]
	s.mux.RUnlock()
	if ok {
		return cached, nil
	}

	location := url.Join(s.baseURL, name)
	if path.Ext(location) == "" {
		location += ".yaml"
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %q from %v: %w", name, location, err)
	}
	template, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template %q: %w", name, err)
	}
	if template.Name == "" {
		template.Name = name
	}

	s.mux.Lock()
	s.cache[name] = template
	s.mux.Unlock()
	return template, nil
}

// Names lists template names found under the base URL, merged with any
// upserted entries.
func (s *Service) Names(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var names []string

	s.mux.RLock()
	for name := range s.cache {
		seen[name] = true
		names = append(names, name)
	}
	s.mux.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		// Storage may be absent when all templates were upserted in memory.
		return names, nil
	}
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		name := object.Name()
		ext := path.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name = strings.TrimSuffix(name, ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Upsert installs or replaces a template definition in the cache.
func (s *Service) Upsert(name string, template *Template) {
	s.mux.Lock()
	s.cache[name] = template
	s.mux.Unlock()
}

// Refresh discards a cached template so the next lookup reloads it.
func (s *Service) Refresh(name string) {
	s.mux.Lock()
	delete(s.cache, name)
	s.mux.Unlock()
}

// Decode parses a YAML template document and validates its steps.
func Decode(data []byte) (*Template, error) {
	template := &Template{}
	if err := yaml.Unmarshal(data, template); err != nil {
		return nil, err
	}
	if len(template.Steps) == 0 {
		return nil, fmt.Errorf("template has no steps")
	}
	for i := range template.Steps {
		step := &template.Steps[i]
		if step.Command == "" {
			return nil, fmt.Errorf("template step %d has no command", i+1)
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
	}
	return template, nil
}
