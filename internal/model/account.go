package model

import "time"

// AccountID uniquely identifies an account across the system
type AccountID int64

// Class is the character class an account competes with
type Class string

// Known classes
const (
	ClassWarrior Class = "warrior"
	ClassMage    Class = "mage"
	ClassRogue   Class = "rogue"
	ClassCleric  Class = "cleric"
	ClassRanger  Class = "ranger"
	ClassPaladin Class = "paladin"
	ClassBard    Class = "bard"
	ClassDruid   Class = "druid"
)

// Classes lists every known class in display order
var Classes = []Class{
	ClassWarrior, ClassMage, ClassRogue, ClassCleric,
	ClassRanger, ClassPaladin, ClassBard, ClassDruid,
}

// Valid reports whether c is one of the known classes
func (c Class) Valid() bool {
	for _, known := range Classes {
		if c == known {
			return true
		}
	}
	return false
}

// Account is a single leaderboard entry in the directory.
// Rank is assigned by the storage backend from score ordering.
type Account struct {
	ID        AccountID
	Username  string
	Class     Class
	Score     int64
	Rank      int
	UpdatedAt time.Time
}

// Identity holds the authentication data for an account.
// Stored separately from the directory entry so query results never carry secrets.
type Identity struct {
	AccountID        AccountID
	Username         string // login identifier (immutable)
	Email            string
	PasswordHash     string // bcrypt hash
	TOTPSecret       string // base32, empty when 2FA was never enrolled
	TwoFactorEnabled bool
	EmailVerified    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
