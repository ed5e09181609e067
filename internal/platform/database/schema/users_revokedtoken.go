package schema

// UserRevokedTokenTable represents the 'users.revoked_token' table
type UserRevokedTokenTable struct {
	Table       string
	TokenDigest string
	AccountID   string
	TokenKind   string
	ExpiresAt   string
	RevokedAt   string
}

// UserRevokedToken is the schema definition for users.revoked_token
var UserRevokedToken = UserRevokedTokenTable{
	Table:       "users.revoked_token",
	TokenDigest: "tokendigest",
	AccountID:   "accountid",
	TokenKind:   "tokenkind",
	ExpiresAt:   "expiresat",
	RevokedAt:   "revokedat",
}

// Columns returns all standard column names
func (t UserRevokedTokenTable) Columns() []string {
	return []string{t.TokenDigest, t.AccountID, t.TokenKind, t.ExpiresAt, t.RevokedAt}
}
