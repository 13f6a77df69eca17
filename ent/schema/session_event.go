package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SessionEvent records one practice session transition.
type SessionEvent struct {
	ent.Schema
}

func (SessionEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (SessionEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("session_id").
			NotEmpty(),
		field.String("subject_id").
			NotEmpty(),
		field.String("variant").
			NotEmpty().
			Comment("review, mock_exam or culture_quiz"),
		field.String("event").
			NotEmpty(),
		field.String("status"),
		field.String("question_id").
			Optional().
			Comment("Set on answered, synced and sync_failed"),
		field.Bool("correct").
			Default(false),
		field.Float("elapsed_seconds").
			Default(0),
		field.Int("questions_answered").
			Default(0),
		field.Int("correct_count").
			Default(0),
		field.Float("accuracy").
			Default(0),
		field.Int("xp_earned").
			Default(0),
	}
}

func (SessionEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id"),
		index.Fields("event"),
	}
}
