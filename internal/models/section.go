package models

// Section is a shareable library on the media server. Sections only enter
// the store through a directory import and are matched by Key.
type Section struct {
	BaseModel
	Key   string `json:"key" gorm:"type:varchar(64);uniqueIndex;not null"`
	Title string `json:"title" gorm:"type:varchar(255);not null"`
	Users []User `json:"-" gorm:"many2many:user_sections;"`
}

func (Section) TableName() string {
	return "sections"
}
