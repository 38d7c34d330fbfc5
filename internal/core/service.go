package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/metrics"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("import session not found")

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// TemplateStore persists mapping templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, name string, headers []string, m Mapping) (*MappingTemplate, error)
	GetTemplate(ctx context.Context, id string) (*MappingTemplate, error)
	ListTemplates(ctx context.Context) ([]MappingTemplate, error)
	UpdateTemplate(ctx context.Context, id, name string, headers []string, m Mapping) (*MappingTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// RunStore persists the audit trail of confirmed imports.
type RunStore interface {
	RecordRun(ctx context.Context, run ImportRun) (*ImportRun, error)
	GetRun(ctx context.Context, id string) (*ImportRun, error)
	ListRuns(ctx context.Context, limit int) ([]ImportRun, error)
	PurgeRuns(ctx context.Context, before time.Time) (int64, error)
}

// Config holds the service limits.
type Config struct {
	Session            SessionOptions
	MaxConcurrentCalls int
	MaxWait            time.Duration
	SessionTTL         time.Duration
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithTemplateStore enables saved mapping templates.
func WithTemplateStore(ts TemplateStore) Option {
	return func(s *Service) { s.templates = ts }
}

// WithRunStore enables the import run audit trail.
func WithRunStore(rs RunStore) Option {
	return func(s *Service) { s.runs = rs }
}

// Service owns the live import sessions and the shared backend matcher.
type Service struct {
	cat     *catalog.Catalog
	cfg     Config
	limiter *CallLimiter
	matcher Matcher

	templates TemplateStore
	runs      RunStore

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a service. Every matcher call goes through a shared
// call limiter.
func NewService(cat *catalog.Catalog, matcher Matcher, cfg Config, opts ...Option) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	cfg.Session = cfg.Session.withDefaults()

	limiter := NewCallLimiter(cfg.MaxConcurrentCalls, cfg.MaxWait)
	s := &Service{
		cat:      cat,
		cfg:      cfg,
		limiter:  limiter,
		matcher:  Limit(matcher, limiter),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the field catalog sessions map onto.
func (s *Service) Catalog() *catalog.Catalog {
	return s.cat
}

// Limiter returns the shared backend call limiter.
func (s *Service) Limiter() *CallLimiter {
	return s.limiter
}

// TemplatesEnabled reports whether mapping templates can be saved.
func (s *Service) TemplatesEnabled() bool {
	return s.templates != nil
}

// RunsEnabled reports whether confirmed imports are recorded.
func (s *Service) RunsEnabled() bool {
	return s.runs != nil
}

// CreateSession decodes an uploaded file and opens a session in the map
// phase. A rejected file leaves no session behind.
func (s *Service) CreateSession(ctx context.Context, fileName string, data []byte) (*Session, error) {
	table, err := tabular.Decode(fileName, data)
	if err != nil {
		metrics.ObserveUpload(string(tabular.DetectFormat(fileName, data)), "rejected", 0)
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}
	return s.OpenTable(ctx, fileName, table)
}

// OpenTable opens a session for an already decoded table. When a saved
// template matches the headers, its mapping is applied over the inferred one.
func (s *Service) OpenTable(ctx context.Context, fileName string, table *tabular.Table) (*Session, error) {
	var saved Mapping
	if s.templates != nil {
		matches, err := s.MatchTemplates(ctx, table.Headers)
		if err != nil {
			slog.Warn("template match failed", "file", fileName, "error", err)
		} else if len(matches) > 0 {
			saved = matches[0].Template.Mapping
			slog.Debug("applying mapping template",
				"file", fileName,
				"template", matches[0].Template.Name,
				"score", matches[0].MatchScore,
			)
		}
	}

	sess := NewSession(uuid.NewString(), fileName, s.cat, s.cfg.Session)
	if err := sess.Load(table, saved); err != nil {
		metrics.ObserveUpload(string(table.Format), "rejected", 0)
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.ObserveUpload(string(table.Format), "ok", len(table.Rows))
	metrics.SetSessionsActive(n)

	slog.Info("import session opened",
		"session_id", sess.ID,
		"file", fileName,
		"format", table.Format,
		"rows", len(table.Rows),
		"headers", len(table.Headers),
	)
	return sess, nil
}

// Session returns a live session.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Sessions returns views of all live sessions, newest first.
func (s *Service) Sessions() []SessionView {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	views := make([]SessionView, len(list))
	for i, sess := range list {
		views[i] = sess.View()
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

// CloseSession discards a session. A session with a backend call running
// cannot be closed.
func (s *Service) CloseSession(id string) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}
	if sess.Busy() {
		return ErrCallInFlight
	}

	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetSessionsActive(n)
	return nil
}

// RunPreview runs the backend preview for a session.
func (s *Service) RunPreview(ctx context.Context, id string) ([]RowDecision, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	decisions, err := sess.RunPreview(ctx, s.matcher)
	if err != nil {
		return nil, err
	}

	slog.Info("preview completed", "session_id", id, "rows", len(decisions))
	return decisions, nil
}

// Confirm commits a session and records the run when a run store is set.
// A failure to record is logged; the import itself already happened.
func (s *Service) Confirm(ctx context.Context, id string) (*ConfirmResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	result, err := sess.Confirm(ctx, s.matcher)
	if err != nil {
		return nil, err
	}

	slog.Info("import confirmed",
		"session_id", id,
		"processed", result.Summary.Processed,
		"created", result.Summary.Created,
		"updated", result.Summary.Updated,
		"skipped", result.Summary.Skipped,
		"errors", result.Summary.Errors,
	)

	if s.runs != nil {
		ip, ua := ClientFromContext(ctx)
		_, err := s.runs.RecordRun(ctx, ImportRun{
			SessionID:   id,
			FileName:    sess.FileName,
			TotalRows:   sess.RawRowCount(),
			Summary:     result.Summary,
			Rows:        result.Rows,
			IPAddress:   ip,
			UserAgent:   ua,
			ConfirmedAt: time.Now(),
		})
		if err != nil {
			slog.Error("record import run failed", "session_id", id, "error", err)
		}
	}

	return result, nil
}

// ExpireIdle drops sessions untouched since before now minus the TTL.
// Sessions with a call running are kept. Returns the number dropped.
func (s *Service) ExpireIdle(now time.Time) int {
	cutoff := now.Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	dropped := 0
	for id, sess := range s.sessions {
		if sess.Busy() || sess.LastActive().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		dropped++
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetSessionsActive(n)
	return dropped
}

// Shutdown waits for running backend calls to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
