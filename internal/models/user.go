package models

// User represents a registered user. Authentication is handled by an
// external identity service; this row only anchors foreign keys and
// display data.
type User struct {
	Base
	Username    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	AvatarURL   string `gorm:"type:text" json:"avatar_url"`
}
