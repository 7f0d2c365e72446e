package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
)

// PermissionRoles returns the named roles with their permissions relevant to
// sharing. Unknown names are ignored.
func (s *Store) PermissionRoles(ctx context.Context, roles []string) ([]model.Role, error) {
	if len(roles) == 0 {
		return []model.Role{}, nil
	}

	query := `
		SELECT r.id, r.name, r.type, p.id, p.operation, p.class, p.field, p.contexts
		FROM grantor_roles r
		LEFT JOIN grantor_role_permissions rp ON rp.role_id = r.id
		LEFT JOIN grantor_permissions p ON p.id = rp.permission_id
		WHERE r.name IN (` + placeholders(1, len(roles)) + `)
		ORDER BY r.name, p.class, p.field, p.operation
	`
	rows, err := s.reader().QueryContext(ctx, query, stringArgs(roles)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission roles: %w", err)
	}
	defer rows.Close()

	var (
		result []model.Role
		index  = make(map[string]int)
	)
	for rows.Next() {
		var (
			role                                   model.Role
			permID, operation, class, field, ctxts sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Type, &permID, &operation, &class, &field, &ctxts); err != nil {
			return nil, fmt.Errorf("failed to scan permission role: %w", err)
		}
		i, ok := index[role.ID]
		if !ok {
			i = len(result)
			index[role.ID] = i
			result = append(result, role)
		}
		if !permID.Valid {
			continue
		}

		contexts, err := decodeContexts(ctxts.String)
		if err != nil {
			return nil, err
		}
		p := model.Permission{
			ID:        permID.String,
			Operation: operation.String,
			Class:     class.String,
			Field:     field.String,
			Contexts:  contexts,
			Roles:     []string{role.Name},
		}
		if p.HasContext(model.ContextSharing) {
			result[i].Permissions = append(result[i].Permissions, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permission roles: %w", err)
	}
	return result, nil
}

// SharingEntries returns the active entries of subjects, with their roles and
// direct permissions. When sids is not empty only entries granted to one of
// them are returned.
func (s *Store) SharingEntries(ctx context.Context, subjects []identity.SubjectIdentity, sids []identity.SecurityIdentity) ([]model.SharingEntry, error) {
	if len(subjects) == 0 {
		return []model.SharingEntry{}, nil
	}

	args := []interface{}{true, s.utcNow()}
	where := []string{
		"s.enabled = $1",
		"(s.started_at IS NULL OR s.started_at <= $2)",
		"(s.ended_at IS NULL OR s.ended_at >= $2)",
	}

	pairs := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		pairs = append(pairs, fmt.Sprintf("(s.subject_class = $%d AND s.subject_id = $%d)", len(args)+1, len(args)+2))
		args = append(args, subject.Type, subject.Identifier)
	}
	where = append(where, "("+strings.Join(pairs, " OR ")+")")

	if len(sids) > 0 {
		pairs = make([]string, 0, len(sids))
		for _, sid := range sids {
			pairs = append(pairs, fmt.Sprintf("(s.identity_class = $%d AND s.identity_name = $%d)", len(args)+1, len(args)+2))
			args = append(args, sid.Type, sid.Identifier)
		}
		where = append(where, "("+strings.Join(pairs, " OR ")+")")
	}

	query := `
		SELECT s.id, s.subject_class, s.subject_id, s.identity_class, s.identity_name, s.enabled, s.started_at, s.ended_at
		FROM grantor_sharings s
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.subject_class, s.subject_id, s.id
	`
	db := s.reader()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sharing entries: %w", err)
	}
	defer rows.Close()

	entries := []model.SharingEntry{}
	index := make(map[string]int)
	for rows.Next() {
		var (
			entry            model.SharingEntry
			started, stopped sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &entry.SubjectClass, &entry.SubjectID, &entry.IdentityClass,
			&entry.IdentityName, &entry.Enabled, &started, &stopped); err != nil {
			return nil, fmt.Errorf("failed to scan sharing entry: %w", err)
		}
		entry.StartedAt = timePtr(started)
		entry.EndedAt = timePtr(stopped)
		index[entry.ID] = len(entries)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sharing entries: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return entries, nil
	}
	if err := loadSharingRoles(ctx, db, entries, index); err != nil {
		return nil, err
	}
	if err := loadSharingPermissions(ctx, db, entries, index); err != nil {
		return nil, err
	}
	return entries, nil
}

func entryIDs(entries []model.SharingEntry) []string {
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return ids
}

func loadSharingRoles(ctx context.Context, db *sql.DB, entries []model.SharingEntry, index map[string]int) error {
	ids := entryIDs(entries)
	query := `
		SELECT sr.sharing_id, r.name
		FROM grantor_sharing_roles sr
		JOIN grantor_roles r ON r.id = sr.role_id
		WHERE sr.sharing_id IN (` + placeholders(1, len(ids)) + `)
		ORDER BY sr.sharing_id, r.name
	`
	rows, err := db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to query sharing roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, role string
		if err := rows.Scan(&id, &role); err != nil {
			return fmt.Errorf("failed to scan sharing role: %w", err)
		}
		if i, ok := index[id]; ok {
			entries[i].Roles = append(entries[i].Roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read sharing roles: %w", err)
	}
	return nil
}

func loadSharingPermissions(ctx context.Context, db *sql.DB, entries []model.SharingEntry, index map[string]int) error {
	ids := entryIDs(entries)
	query := `
		SELECT sp.sharing_id, p.operation, p.field
		FROM grantor_sharing_permissions sp
		JOIN grantor_permissions p ON p.id = sp.permission_id
		WHERE sp.sharing_id IN (` + placeholders(1, len(ids)) + `)
		ORDER BY sp.sharing_id, p.operation
	`
	rows, err := db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to query sharing permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			p  model.SharingPermission
		)
		if err := rows.Scan(&id, &p.Operation, &p.Field); err != nil {
			return fmt.Errorf("failed to scan sharing permission: %w", err)
		}
		if i, ok := index[id]; ok {
			entries[i].Permissions = append(entries[i].Permissions, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read sharing permissions: %w", err)
	}
	return nil
}

// CreateSharing stores a sharing entry. Its roles must exist; its direct
// permissions reuse the matching permission row of the subject class or
// create one in the sharing context.
func (s *Store) CreateSharing(ctx context.Context, entry *model.SharingEntry) error {
	if entry == nil || entry.SubjectClass == "" || entry.SubjectID == "" ||
		entry.IdentityClass == "" || entry.IdentityName == "" {
		return fmt.Errorf("%w: sharing needs a subject and an identity", ErrInvalidEntry)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if entry.ID == "" {
			entry.ID = newID()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO grantor_sharings (id, subject_class, subject_id, identity_class, identity_name, enabled, started_at, ended_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.ID, entry.SubjectClass, entry.SubjectID, entry.IdentityClass, entry.IdentityName,
			entry.Enabled, nullTime(entry.StartedAt), nullTime(entry.EndedAt), s.utcNow())
		if err != nil {
			return fmt.Errorf("failed to create sharing: %w", err)
		}

		for _, role := range entry.Roles {
			roleID, err := roleIDByName(ctx, tx, role)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO grantor_sharing_roles (sharing_id, role_id) VALUES ($1, $2)",
				entry.ID, roleID,
			); err != nil {
				return fmt.Errorf("failed to link sharing role %s: %w", role, err)
			}
		}

		for _, p := range entry.Permissions {
			permissionID, err := s.sharingPermissionID(ctx, tx, entry.SubjectClass, p)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO grantor_sharing_permissions (sharing_id, permission_id) VALUES ($1, $2)",
				entry.ID, permissionID,
			); err != nil {
				return fmt.Errorf("failed to link sharing permission %s: %w", p.Operation, err)
			}
		}
		return nil
	})
}

func (s *Store) sharingPermissionID(ctx context.Context, tx *sql.Tx, class string, sp model.SharingPermission) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM grantor_permissions
		WHERE operation = $1 AND class = $2 AND field = $3
		ORDER BY id
		LIMIT 1
	`, sp.Operation, class, sp.Field).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to get permission %s: %w", sp.Operation, err)
	}

	p := model.Permission{
		Operation: sp.Operation,
		Class:     class,
		Field:     sp.Field,
		Contexts:  []string{model.ContextSharing},
	}
	if err := s.insertPermission(ctx, tx, &p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// RenameIdentity renames the identity of every entry granted to it
func (s *Store) RenameIdentity(ctx context.Context, identityType, oldName, newName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE grantor_sharings SET identity_name = $1
		WHERE identity_class = $2 AND identity_name = $3
	`, newName, identityType, oldName)
	if err != nil {
		return fmt.Errorf("failed to rename sharing identity: %w", err)
	}
	return nil
}

// DeleteIdentity deletes every entry granted to an identity
func (s *Store) DeleteIdentity(ctx context.Context, identityType, name string) error {
	const selectIDs = "SELECT id FROM grantor_sharings WHERE identity_class = $1 AND identity_name = $2"
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"grantor_sharing_roles", "grantor_sharing_permissions"} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE sharing_id IN ("+selectIDs+")",
				identityType, name,
			); err != nil {
				return fmt.Errorf("failed to delete sharing links: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM grantor_sharings WHERE identity_class = $1 AND identity_name = $2",
			identityType, name,
		); err != nil {
			return fmt.Errorf("failed to delete sharings: %w", err)
		}
		return nil
	})
}

// Deletes deletes entries by id
func (s *Store) Deletes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := placeholders(1, len(ids))
	args := stringArgs(ids)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"grantor_sharing_roles", "grantor_sharing_permissions"} {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE sharing_id IN ("+in+")", args...,
			); err != nil {
				return fmt.Errorf("failed to delete sharing links: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM grantor_sharings WHERE id IN ("+in+")", args...,
		); err != nil {
			return fmt.Errorf("failed to delete sharings: %w", err)
		}
		return nil
	})
}
