package session

// CurrentSchemaVersion is the binary layout written by [Encode].
const CurrentSchemaVersion uint8 = 2

// Record is the persisted form of the client session. Profile holds the
// JSON snapshot of the cached profile and is empty when none is cached.
type Record struct {
	SchemaVersion uint8

	PrincipalID string
	Token       string
	Profile     []byte

	SavedAt   int64
	ExpiresAt int64
}

// Empty reports whether r carries no identity at all.
func (r *Record) Empty() bool {
	return r == nil || (r.Token == "" && len(r.Profile) == 0)
}
