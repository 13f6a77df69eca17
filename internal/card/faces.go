package card

import (
	"fmt"
	"strings"
)

// Face is the question/answer text of a card as shown to the learner.
type Face struct {
	Front string
	Back  string
	Hint  string
}

// Faces renders the two sides of any content variant.
func Faces(c Content) Face {
	return Accept[Face](c, faceVisitor{})
}

type faceVisitor struct{}

func (faceVisitor) Meaning(m Meaning) Face {
	hint := m.PartOfSpeech
	if m.Gender != "" {
		hint = strings.TrimSpace(hint + " " + m.Gender)
	}
	if m.Direction == EnglishToGreek {
		return Face{Front: m.Translation, Back: m.Word, Hint: hint}
	}
	return Face{Front: m.Word, Back: m.Translation, Hint: hint}
}

func (faceVisitor) SentenceTranslation(s SentenceTranslation) Face {
	return Face{Front: s.Source, Back: s.Target, Hint: strings.Join(s.Highlighted, ", ")}
}

func (faceVisitor) Conjugation(c Conjugation) Face {
	return Face{
		Front: fmt.Sprintf("%s (%s, %s)", c.Infinitive, c.Tense, c.Person),
		Back:  c.Form,
	}
}

func (faceVisitor) CultureFact(f CultureFact) Face {
	return Face{Front: f.Question, Back: f.Answer, Hint: f.Topic}
}
