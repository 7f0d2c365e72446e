// Package identity models who is asking and what is being asked about.
//
// A SecurityIdentity is an opaque principal reference (user, role, group or
// organization). A SubjectIdentity references the protected resource: a
// concrete instance (type + identifier) or a whole class, in which case the
// identifier is the literal "class". A FieldVote narrows a subject to one of
// its fields.
//
// Domain objects never inherit from a base type. They opt into behavior by
// implementing small capability interfaces (UserAccount, Roleable,
// Groupable, Organizational, ...). The capability set of a Go type is
// resolved once and memoized, see CapabilitiesOf.
package identity
