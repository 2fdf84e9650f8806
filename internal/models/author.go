package models

// Author identifies whoever posted a comment. The (username, email) pair is not
// unique at the storage level.
type Author struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:100;not null;index" json:"username"`
	Email    string `gorm:"size:254;not null;index" json:"email"`
}

func (a Author) String() string {
	return a.Username
}
