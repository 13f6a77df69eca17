package card

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examdrill/internal/spacedrep"
)

func TestFaces(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    Face
	}{
		{
			name:    "greek to english",
			content: Meaning{Direction: GreekToEnglish, Word: "σπίτι", Translation: "house", PartOfSpeech: "noun", Gender: "n"},
			want:    Face{Front: "σπίτι", Back: "house", Hint: "noun n"},
		},
		{
			name:    "english to greek",
			content: Meaning{Direction: EnglishToGreek, Word: "σπίτι", Translation: "house"},
			want:    Face{Front: "house", Back: "σπίτι"},
		},
		{
			name:    "sentence",
			content: SentenceTranslation{Source: "Καλημέρα σας", Target: "Good morning", Highlighted: []string{"σας"}},
			want:    Face{Front: "Καλημέρα σας", Back: "Good morning", Hint: "σας"},
		},
		{
			name:    "conjugation",
			content: Conjugation{Infinitive: "γράφω", Tense: "present", Person: "1pl", Form: "γράφουμε"},
			want:    Face{Front: "γράφω (present, 1pl)", Back: "γράφουμε"},
		},
		{
			name:    "culture",
			content: CultureFact{Question: "Capital of Crete?", Answer: "Heraklion", Topic: "geography"},
			want:    Face{Front: "Capital of Crete?", Back: "Heraklion", Hint: "geography"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Faces(tt.content))
		})
	}
}

func TestMeaningKind(t *testing.T) {
	assert.Equal(t, KindMeaningElToEn, Meaning{Direction: GreekToEnglish}.Kind())
	assert.Equal(t, KindMeaningEnToEl, Meaning{Direction: EnglishToGreek}.Kind())
	assert.Equal(t, KindMeaningElToEn, Meaning{}.Kind())
}

func TestCardJSONRoundTrip(t *testing.T) {
	due := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	c := New("c1", "greek-a2", Conjugation{Infinitive: "τρώω", Tense: "aorist", Person: "3sg", Form: "έφαγε"})
	c.SRS = spacedrep.Data{Interval: 3, EaseFactor: 2.5, State: spacedrep.StateReview, DueDate: &due, ReviewCount: 2, SuccessCount: 2, SuccessRate: 100}

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"conjugation"`)

	var got Card
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.SubjectID, got.SubjectID)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, c.SRS.Interval, got.SRS.Interval)
	require.NotNil(t, got.SRS.DueDate)
	assert.True(t, due.Equal(*got.SRS.DueDate))
}

func TestCardUnmarshal_DefaultsSRS(t *testing.T) {
	raw := `{"id":"m1","subjectId":"s","kind":"meaning_en_to_el","content":{"word":"νερό","translation":"water"}}`
	var c Card
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	m, ok := c.Content.(Meaning)
	require.True(t, ok)
	assert.Equal(t, EnglishToGreek, m.Direction)
	assert.Equal(t, spacedrep.StateNew, c.SRS.State)
	assert.Equal(t, spacedrep.DefaultEaseFactor, c.SRS.EaseFactor)
}

func TestCardUnmarshal_UnknownKind(t *testing.T) {
	raw := `{"id":"x","subjectId":"s","kind":"listening","content":{}}`
	var c Card
	err := json.Unmarshal([]byte(raw), &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown card kind")
}

func TestValidate(t *testing.T) {
	ok := New("id", "subj", CultureFact{Question: "q", Answer: "a"})
	assert.NoError(t, ok.Validate())

	missing := Card{}
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), "content is required")

	empty := New("id", "subj", CultureFact{Question: "q"})
	assert.Error(t, empty.Validate())
}

type kindCounter struct{}

func (kindCounter) Meaning(Meaning) int                         { return 1 }
func (kindCounter) SentenceTranslation(SentenceTranslation) int { return 2 }
func (kindCounter) Conjugation(Conjugation) int                 { return 3 }
func (kindCounter) CultureFact(CultureFact) int                 { return 4 }

func TestAccept_DispatchesEveryVariant(t *testing.T) {
	contents := []Content{Meaning{}, SentenceTranslation{}, Conjugation{}, CultureFact{}}
	for i, c := range contents {
		assert.Equal(t, i+1, Accept[int](c, kindCounter{}))
	}
}
