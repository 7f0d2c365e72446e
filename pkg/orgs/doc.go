// Package orgs expands users into organization scoped security identities.
//
// Without a current organization in the context, every organization the user
// belongs to contributes identities. With one, only the current organization
// does. Role and group names are suffixed with the organization name
// (ROLE_ADMIN__acme) so the same role can carry different grants per
// organization.
//
// Register the expansion on an identity manager:
//
//	manager.AddIdentitiesHook(orgs.AddIdentitiesHook(hierarchy))
//	ctx = orgs.WithContext(ctx, orgs.NewContext(org, orgUser))
package orgs
