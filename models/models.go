package models

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&PostAttachment{},
		&PostComment{},
		&PostLike{},
		&Team{},
		&TeamMember{},
		&TeamPost{},
		&Todo{},
	}
}
