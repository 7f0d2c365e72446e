package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/grantor/pkg/permission"
	"github.com/platinummonkey/grantor/pkg/rolehierarchy"
	"github.com/platinummonkey/grantor/pkg/sharing"
)

var (
	_ permission.Provider      = (*Store)(nil)
	_ sharing.Provider         = (*Store)(nil)
	_ rolehierarchy.RoleLoader = (*Store)(nil)
)

// Store handles permission, role and sharing persistence
type Store struct {
	db     *sql.DB
	reader func() *sql.DB
	now    func() time.Time

	mu           sync.RWMutex
	associations map[string]map[string]string // class -> property -> target class
}

// New creates a store reading and writing through db
func New(db *sql.DB) *Store {
	return &Store{
		db:           db,
		reader:       func() *sql.DB { return db },
		now:          time.Now,
		associations: make(map[string]map[string]string),
	}
}

// NewFromConnections creates a store writing to the primary and reading from
// the replicas of cm
func NewFromConnections(cm *ConnectionManager) *Store {
	s := New(cm.Primary())
	s.reader = cm.Replica
	return s
}

// SetClock replaces the time source used for activity windows and timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetAssociation records that property of class references objects of target.
// MasterClass resolves masters through these associations.
func (s *Store) SetAssociation(class, property, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.associations[class] == nil {
		s.associations[class] = make(map[string]string)
	}
	s.associations[class][property] = target
}

// MasterClass returns the class referenced by the master property of config,
// or "" when the association is unknown
func (s *Store) MasterClass(_ context.Context, config *permission.Config) (string, error) {
	if config == nil || config.Master == "" {
		return "", nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.associations[config.Type][config.Master], nil
}

func (s *Store) utcNow() time.Time {
	return s.now().UTC()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}

// placeholders returns "$from, $from+1, ..." for n values
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func encodeContexts(contexts []string) (string, error) {
	if contexts == nil {
		contexts = []string{}
	}
	data, err := json.Marshal(contexts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal contexts: %w", err)
	}
	return string(data), nil
}

func decodeContexts(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var contexts []string
	if err := json.Unmarshal([]byte(data), &contexts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contexts: %w", err)
	}
	if len(contexts) == 0 {
		return nil, nil
	}
	return contexts, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
