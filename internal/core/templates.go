package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TemplateMatchThreshold is the share of a template's headers a file must
// contain for the template to be suggested.
const TemplateMatchThreshold = 0.7

// ErrTemplatesDisabled is returned when no template store is configured.
var ErrTemplatesDisabled = errors.New("mapping templates need a database")

// ErrTemplateNotFound is returned by stores for unknown template ids.
var ErrTemplateNotFound = errors.New("template not found")

// CreateTemplate saves a mapping under name.
func (s *Service) CreateTemplate(ctx context.Context, name string, headers []string, m Mapping) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrTemplatesDisabled
	}
	name, m, err := s.checkTemplate(name, headers, m)
	if err != nil {
		return nil, err
	}
	return s.templates.CreateTemplate(ctx, name, headers, m)
}

// SaveSessionTemplate saves the current mapping of a session.
func (s *Service) SaveSessionTemplate(ctx context.Context, sessionID, name string) (*MappingTemplate, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.CreateTemplate(ctx, name, sess.Headers(), sess.Mapping())
}

// GetTemplate returns one template.
func (s *Service) GetTemplate(ctx context.Context, id string) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrTemplatesDisabled
	}
	return s.templates.GetTemplate(ctx, id)
}

// ListTemplates returns all saved templates.
func (s *Service) ListTemplates(ctx context.Context) ([]MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrTemplatesDisabled
	}
	return s.templates.ListTemplates(ctx)
}

// UpdateTemplate replaces a template's name, headers and mapping.
func (s *Service) UpdateTemplate(ctx context.Context, id, name string, headers []string, m Mapping) (*MappingTemplate, error) {
	if s.templates == nil {
		return nil, ErrTemplatesDisabled
	}
	name, m, err := s.checkTemplate(name, headers, m)
	if err != nil {
		return nil, err
	}
	return s.templates.UpdateTemplate(ctx, id, name, headers, m)
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if s.templates == nil {
		return ErrTemplatesDisabled
	}
	return s.templates.DeleteTemplate(ctx, id)
}

func (s *Service) checkTemplate(name string, headers []string, m Mapping) (string, Mapping, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: template name is required", ErrInvalidMapping)
	}
	if len(headers) == 0 {
		return "", nil, fmt.Errorf("%w: template needs headers", ErrInvalidMapping)
	}
	m = m.Clone()
	if err := m.Validate(s.cat, headers); err != nil {
		return "", nil, err
	}
	return name, m, nil
}

// MatchTemplates returns the templates whose headers the file mostly
// contains, best match first.
func (s *Service) MatchTemplates(ctx context.Context, headers []string) ([]TemplateMatch, error) {
	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	var matches []TemplateMatch
	for _, t := range templates {
		score := matchTemplateHeaders(headers, t.Headers)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches, nil
}

// matchTemplateHeaders returns the share of template headers present in the
// file, compared case-insensitively.
func matchTemplateHeaders(fileHeaders, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	have := make(map[string]bool, len(fileHeaders))
	for _, h := range fileHeaders {
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if have[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}
	return float64(matched) / float64(len(templateHeaders))
}
