package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/personimport/internal/core"
)

var _ core.TemplateStore = (*Store)(nil)

const templateColumns = `id::text, name, headers, mapping, created_at, updated_at`

// CreateTemplate inserts a new mapping template.
func (s *Store) CreateTemplate(ctx context.Context, name string, headers []string, m core.Mapping) (*core.MappingTemplate, error) {
	headersJSON, mappingJSON, err := marshalTemplate(headers, m)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO mapping_templates (id, name, headers, mapping)
		 VALUES ($1::uuid, $2, $3, $4)
		 RETURNING `+templateColumns,
		uuid.NewString(), name, headersJSON, mappingJSON,
	)

	t, err := scanTemplate(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("template %q already exists", name)
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// GetTemplate returns a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*core.MappingTemplate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrTemplateNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM mapping_templates WHERE id = $1::uuid`, id)

	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns every template ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]core.MappingTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM mapping_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []core.MappingTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("list templates: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return out, nil
}

// UpdateTemplate replaces name, headers and mapping of an existing template.
func (s *Store) UpdateTemplate(ctx context.Context, id, name string, headers []string, m core.Mapping) (*core.MappingTemplate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.ErrTemplateNotFound
	}
	headersJSON, mappingJSON, err := marshalTemplate(headers, m)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE mapping_templates
		 SET name = $2, headers = $3, mapping = $4, updated_at = $5
		 WHERE id = $1::uuid
		 RETURNING `+templateColumns,
		id, name, headersJSON, mappingJSON, time.Now().UTC(),
	)

	t, err := scanTemplate(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, core.ErrTemplateNotFound
		case isUniqueViolation(err):
			return nil, fmt.Errorf("template %q already exists", name)
		}
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrTemplateNotFound
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func marshalTemplate(headers []string, m core.Mapping) ([]byte, []byte, error) {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal headers: %w", err)
	}
	if m == nil {
		m = core.Mapping{}
	}
	mappingJSON, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal mapping: %w", err)
	}
	return headersJSON, mappingJSON, nil
}

func scanTemplate(row pgx.Row) (*core.MappingTemplate, error) {
	var (
		t                        core.MappingTemplate
		headersJSON, mappingJSON []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &headersJSON, &mappingJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headersJSON, &t.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(mappingJSON, &t.Mapping); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	return &t, nil
}
