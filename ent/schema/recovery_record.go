package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// RecoveryRecord holds one in-progress session snapshot per key.
type RecoveryRecord struct {
	ent.Schema
}

func (RecoveryRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Comment("Recovery key"),
		field.Bytes("value").
			Comment("Versioned snapshot envelope"),
		field.Time("updated_at"),
	}
}
