package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/model"
	"github.com/platinummonkey/grantor/pkg/permission"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db, nil))
	return db
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store := New(setupTestDB(t))
	store.SetClock(func() time.Time { return testNow })
	return store
}

func seedRoles(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_USER"}))
	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_ADMIN", Children: []string{"ROLE_USER"}}))
	require.NoError(t, store.CreateRole(ctx, &model.Role{Name: "ROLE_EDITOR"}))

	permissions := []model.Permission{
		{Operation: "view", Class: "MockObject", Roles: []string{"ROLE_USER"}},
		{Operation: "edit", Class: "MockObject", Roles: []string{"ROLE_ADMIN", "ROLE_EDITOR"}},
		{Operation: "view", Class: "MockObject", Field: "name", Roles: []string{"ROLE_USER"}},
		{Operation: "create", Roles: []string{"ROLE_ADMIN"}},
		{Operation: "view", Class: model.ConfigClass, Contexts: []string{model.ContextRole}},
		{Operation: "edit", Class: "MockObject", Contexts: []string{model.ContextSharing}, Roles: []string{"ROLE_EDITOR"}},
	}
	for i := range permissions {
		require.NoError(t, store.CreatePermission(ctx, &permissions[i]))
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, db, nil))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM grantor_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestStore_Permissions(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	permissions, err := store.Permissions(ctx, []string{"ROLE_ADMIN", "ROLE_EDITOR"})
	require.NoError(t, err)

	byKey := make(map[string]model.Permission)
	for _, p := range permissions {
		byKey[p.Class+"/"+p.Field+"/"+p.Operation+"/"+p.ID] = p
	}
	var edit, create []model.Permission
	for _, p := range permissions {
		switch {
		case p.Operation == "edit" && p.Class == "MockObject":
			edit = append(edit, p)
		case p.Operation == "create":
			create = append(create, p)
		}
	}
	require.Len(t, edit, 2, "class edit row and sharing edit row")
	require.Len(t, create, 1)
	assert.True(t, create[0].IsGlobal())
	assert.Equal(t, []string{"ROLE_ADMIN"}, create[0].Roles)

	for _, p := range edit {
		if len(p.Contexts) == 0 {
			assert.ElementsMatch(t, []string{"ROLE_ADMIN", "ROLE_EDITOR"}, p.Roles)
		}
	}
	assert.Len(t, byKey, len(permissions), "one entry per permission row")

	empty, err := store.Permissions(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := store.Permissions(ctx, []string{"ROLE_UNKNOWN"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_PermissionsBySubject(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	global, err := store.PermissionsBySubject(ctx, nil, []string{model.ContextRole})
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "create", global[0].Operation)

	class := &identity.FieldVote{Subject: identity.ClassSubject("MockObject")}
	rows, err := store.PermissionsBySubject(ctx, class, []string{model.ContextRole})
	require.NoError(t, err)
	operations := make([]string, 0, len(rows))
	for _, p := range rows {
		operations = append(operations, p.Class+"."+p.Operation)
	}
	assert.ElementsMatch(t, []string{"MockObject.edit", "MockObject.view", model.ConfigClass + ".view"}, operations)

	field := &identity.FieldVote{Subject: identity.ClassSubject("MockObject"), Field: "name"}
	rows, err = store.PermissionsBySubject(ctx, field, []string{model.ContextRole})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "name", rows[0].Field)

	sharingRows, err := store.PermissionsBySubject(ctx, class, []string{model.ContextSharing})
	require.NoError(t, err)
	for _, p := range sharingRows {
		assert.NotEqual(t, model.ConfigClass, p.Class, "role scoped config rows are filtered out")
	}
}

func TestStore_ConfigPermissions(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	rows, err := store.ConfigPermissions(ctx, []string{model.ContextRole})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsConfig())
	assert.Equal(t, []string{model.ContextRole}, rows[0].Contexts)

	rows, err = store.ConfigPermissions(ctx, []string{model.ContextOrganizationRole})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_RoleChildren(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	require.NoError(t, store.AddRoleChild(ctx, "ROLE_ADMIN", "ROLE_EDITOR"))

	edges, err := store.RoleChildren(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"ROLE_ADMIN": {"ROLE_EDITOR", "ROLE_USER"}}, edges)

	err = store.AddRoleChild(ctx, "ROLE_ADMIN", "ROLE_MISSING")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestStore_CreateRole_UnknownChild(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.CreateRole(ctx, &model.Role{Name: "ROLE_ADMIN", Children: []string{"ROLE_USER"}})
	assert.ErrorIs(t, err, ErrRoleNotFound)

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM grantor_roles").Scan(&count))
	assert.Zero(t, count, "failed creation is rolled back")

	assert.ErrorIs(t, store.CreateRole(ctx, &model.Role{}), ErrInvalidEntry)
	assert.ErrorIs(t, store.CreatePermission(ctx, &model.Permission{}), ErrInvalidEntry)
}

func TestStore_CreateRole_WithPermissions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	role := &model.Role{
		Name:        "ROLE_AUDITOR",
		Permissions: []model.Permission{{Operation: "view", Class: "Report"}},
	}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.NotEmpty(t, role.ID)
	assert.NotEmpty(t, role.Permissions[0].ID)
	assert.Equal(t, []string{"ROLE_AUDITOR"}, role.Permissions[0].Roles)

	rows, err := store.Permissions(ctx, []string{"ROLE_AUDITOR"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, role.Permissions[0].ID, rows[0].ID)
}

func TestStore_PermissionRoles(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	ctx := context.Background()

	roles, err := store.PermissionRoles(ctx, []string{"ROLE_EDITOR", "ROLE_USER", "ROLE_UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, roles, 2)

	assert.Equal(t, "ROLE_EDITOR", roles[0].Name)
	require.Len(t, roles[0].Permissions, 2, "context free and sharing rows only")
	for _, p := range roles[0].Permissions {
		assert.Equal(t, "edit", p.Operation)
	}

	assert.Equal(t, "ROLE_USER", roles[1].Name)
	assert.Len(t, roles[1].Permissions, 2)

	none, err := store.PermissionRoles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func seedSharings(t *testing.T, store *Store) map[string]*model.SharingEntry {
	t.Helper()
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	entries := map[string]*model.SharingEntry{
		"direct": {
			SubjectClass: "MockObject", SubjectID: "doc-1",
			IdentityClass: "MockUser", IdentityName: "user.test",
			Enabled:     true,
			Permissions: []model.SharingPermission{{Operation: "view"}, {Operation: "edit", Field: "name"}},
		},
		"role": {
			SubjectClass: "MockObject", SubjectID: "doc-1",
			IdentityClass: "MockGroup", IdentityName: "staff",
			Enabled: true, StartedAt: &past, EndedAt: &future,
			Roles: []string{"ROLE_EDITOR"},
		},
		"disabled": {
			SubjectClass: "MockObject", SubjectID: "doc-1",
			IdentityClass: "MockUser", IdentityName: "user.test",
			Enabled:     false,
			Permissions: []model.SharingPermission{{Operation: "delete"}},
		},
		"expired": {
			SubjectClass: "MockObject", SubjectID: "doc-2",
			IdentityClass: "MockUser", IdentityName: "user.test",
			Enabled: true, EndedAt: &past,
			Permissions: []model.SharingPermission{{Operation: "view"}},
		},
		"pending": {
			SubjectClass: "MockObject", SubjectID: "doc-2",
			IdentityClass: "MockUser", IdentityName: "user.test",
			Enabled: true, StartedAt: &future,
			Permissions: []model.SharingPermission{{Operation: "view"}},
		},
		"other": {
			SubjectClass: "MockObject", SubjectID: "doc-3",
			IdentityClass: "MockUser", IdentityName: "user.other",
			Enabled:     true,
			Permissions: []model.SharingPermission{{Operation: "view"}},
		},
	}
	for _, name := range []string{"direct", "role", "disabled", "expired", "pending", "other"} {
		require.NoError(t, store.CreateSharing(ctx, entries[name]), name)
	}
	return entries
}

func TestStore_SharingEntries(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	entries := seedSharings(t, store)
	ctx := context.Background()

	subjects := []identity.SubjectIdentity{
		{Type: "MockObject", Identifier: "doc-1"},
		{Type: "MockObject", Identifier: "doc-2"},
		{Type: "MockObject", Identifier: "doc-3"},
	}
	all, err := store.SharingEntries(ctx, subjects, nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{entries["direct"].ID, entries["role"].ID, entries["other"].ID}, ids)

	for _, e := range all {
		switch e.ID {
		case entries["direct"].ID:
			assert.ElementsMatch(t, []model.SharingPermission{{Operation: "view"}, {Operation: "edit", Field: "name"}}, e.Permissions)
			assert.Empty(t, e.Roles)
		case entries["role"].ID:
			assert.Equal(t, []string{"ROLE_EDITOR"}, e.Roles)
			require.NotNil(t, e.StartedAt)
			assert.True(t, e.StartedAt.Equal(testNow.Add(-time.Hour)))
			assert.True(t, e.IsActive(testNow))
		}
	}

	sids := []identity.SecurityIdentity{{Kind: identity.KindGroup, Type: "MockGroup", Identifier: "staff"}}
	filtered, err := store.SharingEntries(ctx, subjects, sids)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, entries["role"].ID, filtered[0].ID)

	none, err := store.SharingEntries(ctx, nil, sids)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_CreateSharing_ReusesPermissions(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	seedSharings(t, store)
	ctx := context.Background()

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM grantor_permissions WHERE class = $1 AND field = '' AND operation = $2",
		"MockObject", "view",
	).Scan(&count))
	assert.Equal(t, 1, count, "sharing permissions reuse the class view row")

	err := store.CreateSharing(ctx, &model.SharingEntry{SubjectClass: "MockObject", SubjectID: "doc-1"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	err = store.CreateSharing(ctx, &model.SharingEntry{
		SubjectClass: "MockObject", SubjectID: "doc-1",
		IdentityClass: "MockUser", IdentityName: "user.test",
		Roles: []string{"ROLE_MISSING"},
	})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestStore_SharingMutations(t *testing.T) {
	store := setupTestStore(t)
	seedRoles(t, store)
	entries := seedSharings(t, store)
	ctx := context.Background()
	doc1 := []identity.SubjectIdentity{{Type: "MockObject", Identifier: "doc-1"}}
	doc3 := []identity.SubjectIdentity{{Type: "MockObject", Identifier: "doc-3"}}
	renamed := []identity.SecurityIdentity{{Kind: identity.KindUser, Type: "MockUser", Identifier: "user.renamed"}}

	require.NoError(t, store.RenameIdentity(ctx, "MockUser", "user.test", "user.renamed"))
	got, err := store.SharingEntries(ctx, doc1, renamed)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entries["direct"].ID, got[0].ID)

	require.NoError(t, store.DeleteIdentity(ctx, "MockUser", "user.renamed"))
	got, err = store.SharingEntries(ctx, doc1, renamed)
	require.NoError(t, err)
	assert.Empty(t, got)

	var links int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM grantor_sharing_permissions WHERE sharing_id = $1", entries["direct"].ID,
	).Scan(&links))
	assert.Zero(t, links)

	require.NoError(t, store.Deletes(ctx, []string{entries["other"].ID}))
	got, err = store.SharingEntries(ctx, doc3, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Deletes(ctx, nil))
}

func TestStore_MasterClass(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	class, err := store.MasterClass(ctx, &permission.Config{Type: "Comment", Master: "post"})
	require.NoError(t, err)
	assert.Empty(t, class)

	store.SetAssociation("Comment", "post", "Post")
	class, err = store.MasterClass(ctx, &permission.Config{Type: "Comment", Master: "post"})
	require.NoError(t, err)
	assert.Equal(t, "Post", class)

	class, err = store.MasterClass(ctx, &permission.Config{Type: "Comment"})
	require.NoError(t, err)
	assert.Empty(t, class)
}
