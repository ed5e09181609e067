package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table       string
	ID          string
	Email       string
	Phone       string
	Password    string
	DisplayName string
	Role        string
	State       string
	LastLoginAt string
	CreatedAt   string
	UpdatedAt   string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:       "users.account",
	ID:          "id",
	Email:       "email",
	Phone:       "phone",
	Password:    "passwordhash",
	DisplayName: "displayname",
	Role:        "role",
	State:       "state",
	LastLoginAt: "lastloginat",
	CreatedAt:   "createdat",
	UpdatedAt:   "updatedat",
}

// Columns returns all standard column names
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.Phone, t.Password, t.DisplayName, t.Role,
		t.State, t.LastLoginAt, t.CreatedAt, t.UpdatedAt,
	}
}
