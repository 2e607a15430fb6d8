package models

// All returns every table the relay owns, in migration order.
func All() []any {
	return []any{
		&Message{},
		&GroupMember{},
		&UnreadCount{},
	}
}
