package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
)

const permissionColumns = "p.id, p.operation, p.class, p.field, p.contexts"

// Permissions returns every permission granted to one of roles, with Roles
// listing the requested roles holding it
func (s *Store) Permissions(ctx context.Context, roles []string) ([]model.Permission, error) {
	if len(roles) == 0 {
		return []model.Permission{}, nil
	}

	query := `
		SELECT ` + permissionColumns + `, r.name
		FROM grantor_permissions p
		JOIN grantor_role_permissions rp ON rp.permission_id = p.id
		JOIN grantor_roles r ON r.id = rp.role_id
		WHERE r.name IN (` + placeholders(1, len(roles)) + `)
		ORDER BY p.class, p.field, p.operation, p.id, r.name
	`
	rows, err := s.reader().QueryContext(ctx, query, stringArgs(roles)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var (
		permissions []model.Permission
		index       = make(map[string]int)
	)
	for rows.Next() {
		var (
			p        model.Permission
			contexts string
			role     string
		)
		if err := rows.Scan(&p.ID, &p.Operation, &p.Class, &p.Field, &contexts, &role); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		if i, ok := index[p.ID]; ok {
			permissions[i].Roles = append(permissions[i].Roles, role)
			continue
		}
		if p.Contexts, err = decodeContexts(contexts); err != nil {
			return nil, err
		}
		p.Roles = []string{role}
		index[p.ID] = len(permissions)
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role permissions: %w", err)
	}
	return permissions, nil
}

// PermissionsBySubject returns the permission rows applicable to a subject in
// one of contexts: rows of its class and config rows, for the class level or
// the requested field. A nil subject selects the global rows.
func (s *Store) PermissionsBySubject(ctx context.Context, subject *identity.FieldVote, contexts []string) ([]model.Permission, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case subject == nil:
		where = "p.class = ''"
	case subject.Field == "":
		where = "p.class IN ($1, $2) AND p.field = ''"
		args = []interface{}{subject.Subject.Type, model.ConfigClass}
	default:
		where = "p.class IN ($1, $2) AND p.field IN ($3, $4)"
		args = []interface{}{subject.Subject.Type, model.ConfigClass, subject.Field, model.ConfigField}
	}
	return s.queryPermissions(ctx, where, args, contexts)
}

// ConfigPermissions returns the config level rows relevant in one of contexts
func (s *Store) ConfigPermissions(ctx context.Context, contexts []string) ([]model.Permission, error) {
	return s.queryPermissions(ctx, "p.class = $1 OR p.field = $2",
		[]interface{}{model.ConfigClass, model.ConfigField}, contexts)
}

func (s *Store) queryPermissions(ctx context.Context, where string, args []interface{}, contexts []string) ([]model.Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM grantor_permissions p
		WHERE ` + where + `
		ORDER BY p.class, p.field, p.operation, p.id
	`
	rows, err := s.reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	permissions := []model.Permission{}
	for rows.Next() {
		var (
			p   model.Permission
			raw string
		)
		if err := rows.Scan(&p.ID, &p.Operation, &p.Class, &p.Field, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		if p.Contexts, err = decodeContexts(raw); err != nil {
			return nil, err
		}
		if p.HasContext(contexts...) {
			permissions = append(permissions, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}
	return permissions, nil
}

// RoleChildren returns the stored role hierarchy: parent name -> child names
func (s *Store) RoleChildren(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT parent.name, child.name
		FROM grantor_role_children rc
		JOIN grantor_roles parent ON parent.id = rc.parent_id
		JOIN grantor_roles child ON child.id = rc.child_id
		ORDER BY parent.name, child.name
	`
	rows, err := s.reader().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query role children: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, fmt.Errorf("failed to scan role child: %w", err)
		}
		edges[parent] = append(edges[parent], child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role children: %w", err)
	}
	return edges, nil
}

// CreatePermission stores a permission row and grants it to p.Roles, which
// must exist. An empty ID is generated.
func (s *Store) CreatePermission(ctx context.Context, p *model.Permission) error {
	if p == nil || p.Operation == "" {
		return fmt.Errorf("%w: permission without operation", ErrInvalidEntry)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertPermission(ctx, tx, p); err != nil {
			return err
		}
		for _, role := range p.Roles {
			roleID, err := roleIDByName(ctx, tx, role)
			if err != nil {
				return err
			}
			if err := grantPermission(ctx, tx, roleID, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertPermission(ctx context.Context, tx *sql.Tx, p *model.Permission) error {
	if p.ID == "" {
		p.ID = newID()
	}
	contexts, err := encodeContexts(p.Contexts)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO grantor_permissions (id, operation, class, field, contexts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Operation, p.Class, p.Field, contexts, s.utcNow())
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// CreateRole stores a role, links its children (which must exist) and grants
// its permissions. Permissions without an ID are created.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	if role == nil || role.Name == "" {
		return fmt.Errorf("%w: role without name", ErrInvalidEntry)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if role.ID == "" {
			role.ID = newID()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grantor_roles (id, name, type, created_at)
			VALUES ($1, $2, $3, $4)
		`, role.ID, role.Name, role.Type, s.utcNow())
		if err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		for _, child := range role.Children {
			childID, err := roleIDByName(ctx, tx, child)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO grantor_role_children (parent_id, child_id) VALUES ($1, $2)",
				role.ID, childID,
			); err != nil {
				return fmt.Errorf("failed to link child role %s: %w", child, err)
			}
		}

		for i := range role.Permissions {
			p := &role.Permissions[i]
			if p.ID == "" {
				if err := s.insertPermission(ctx, tx, p); err != nil {
					return err
				}
			}
			if err := grantPermission(ctx, tx, role.ID, p.ID); err != nil {
				return err
			}
			if !p.GrantedTo(role.Name) {
				p.Roles = append(p.Roles, role.Name)
			}
		}
		return nil
	})
}

// AddRoleChild links an existing child role to an existing parent role
func (s *Store) AddRoleChild(ctx context.Context, parent, child string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		parentID, err := roleIDByName(ctx, tx, parent)
		if err != nil {
			return err
		}
		childID, err := roleIDByName(ctx, tx, child)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO grantor_role_children (parent_id, child_id) VALUES ($1, $2)",
			parentID, childID,
		); err != nil {
			return fmt.Errorf("failed to link child role %s: %w", child, err)
		}
		return nil
	})
}

func roleIDByName(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, "SELECT id FROM grantor_roles WHERE name = $1", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role %s: %w", name, err)
	}
	return id, nil
}

func grantPermission(ctx context.Context, tx *sql.Tx, roleID, permissionID string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO grantor_role_permissions (role_id, permission_id) VALUES ($1, $2)",
		roleID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}
