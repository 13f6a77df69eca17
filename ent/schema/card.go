package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/abhisek/examdrill/internal/spacedrep"
)

// Card is a study card and its spaced repetition state.
type Card struct {
	ent.Schema
}

func (Card) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			Comment("Stable card id from the deck"),
		field.String("subject_id").
			NotEmpty(),
		field.String("kind").
			NotEmpty().
			Comment("meaning, sentence_translation, conjugation or culture_fact"),
		field.Text("content").
			Comment("Kind-specific content as JSON"),
		field.JSON("srs", spacedrep.Data{}),
		field.String("state").
			Default(string(spacedrep.StateNew)).
			Comment("Copy of srs.state for filtering"),
		field.Time("due_at").
			Optional().
			Nillable(),
		field.Time("updated_at"),
	}
}

func (Card) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("subject_id"),
		index.Fields("subject_id", "due_at"),
	}
}
