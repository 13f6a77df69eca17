package card

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a card content variant. It is the JSON discriminator.
type Kind string

const (
	KindMeaningElToEn       Kind = "meaning_el_to_en"
	KindMeaningEnToEl       Kind = "meaning_en_to_el"
	KindSentenceTranslation Kind = "sentence_translation"
	KindConjugation         Kind = "conjugation"
	KindCultureFact         Kind = "culture_fact"
)

// Content is the immutable, variant-specific payload of a card. The set
// of implementations is closed; consumers dispatch with Accept.
type Content interface {
	Kind() Kind
	content()
}

// Direction is the translation direction of a Meaning card.
type Direction string

const (
	GreekToEnglish Direction = "el_to_en"
	EnglishToGreek Direction = "en_to_el"
)

// Meaning asks for the translation of a single word or phrase.
type Meaning struct {
	Direction    Direction `json:"direction"`
	Word         string    `json:"word"`
	Translation  string    `json:"translation"`
	PartOfSpeech string    `json:"partOfSpeech,omitempty"`
	Gender       string    `json:"gender,omitempty"`
}

func (m Meaning) Kind() Kind {
	if m.Direction == EnglishToGreek {
		return KindMeaningEnToEl
	}
	return KindMeaningElToEn
}

// SentenceTranslation asks for the translation of a whole sentence.
type SentenceTranslation struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Highlighted []string `json:"highlighted,omitempty"`
}

func (SentenceTranslation) Kind() Kind { return KindSentenceTranslation }

// Conjugation carries a verb paradigm; the card asks for one form.
type Conjugation struct {
	Infinitive string            `json:"infinitive"`
	Tense      string            `json:"tense"`
	Person     string            `json:"person"`
	Form       string            `json:"form"`
	Paradigm   map[string]string `json:"paradigm,omitempty"`
}

func (Conjugation) Kind() Kind { return KindConjugation }

// CultureFact is a question/answer pair from the culture syllabus.
type CultureFact struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Topic    string `json:"topic,omitempty"`
}

func (CultureFact) Kind() Kind { return KindCultureFact }

func (Meaning) content()             {}
func (SentenceTranslation) content() {}
func (Conjugation) content()         {}
func (CultureFact) content()         {}

// Visitor has one method per content variant. Adding a variant adds a
// method here, which breaks every consumer until it handles the new case.
type Visitor[T any] interface {
	Meaning(Meaning) T
	SentenceTranslation(SentenceTranslation) T
	Conjugation(Conjugation) T
	CultureFact(CultureFact) T
}

// Accept dispatches c to the matching visitor method.
func Accept[T any](c Content, v Visitor[T]) T {
	switch c := c.(type) {
	case Meaning:
		return v.Meaning(c)
	case SentenceTranslation:
		return v.SentenceTranslation(c)
	case Conjugation:
		return v.Conjugation(c)
	case CultureFact:
		return v.CultureFact(c)
	}
	panic(fmt.Sprintf("card: unhandled content type %T", c))
}

// DecodeContent builds the variant for kind from raw JSON.
func DecodeContent(kind Kind, raw json.RawMessage) (Content, error) {
	var (
		c   Content
		err error
	)
	switch kind {
	case KindMeaningElToEn, KindMeaningEnToEl:
		var m Meaning
		err = json.Unmarshal(raw, &m)
		if m.Direction == "" {
			m.Direction = GreekToEnglish
			if kind == KindMeaningEnToEl {
				m.Direction = EnglishToGreek
			}
		}
		c = m
	case KindSentenceTranslation:
		var s SentenceTranslation
		err = json.Unmarshal(raw, &s)
		c = s
	case KindConjugation:
		var cj Conjugation
		err = json.Unmarshal(raw, &cj)
		c = cj
	case KindCultureFact:
		var f CultureFact
		err = json.Unmarshal(raw, &f)
		c = f
	default:
		return nil, fmt.Errorf("unknown card kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", kind, err)
	}
	return c, nil
}
