package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/examdrill/internal/spacedrep"
)

// Card is a flashcard: immutable content plus its owned review state.
type Card struct {
	ID        string
	SubjectID string
	Content   Content
	SRS       spacedrep.Data
}

// New creates a card with fresh review state.
func New(id, subjectID string, content Content) Card {
	return Card{
		ID:        id,
		SubjectID: subjectID,
		Content:   content,
		SRS:       spacedrep.NewData(),
	}
}

// Kind returns the content kind, or "" if the card has no content.
func (c Card) Kind() Kind {
	if c.Content == nil {
		return ""
	}
	return c.Content.Kind()
}

// Clone returns a copy whose review state does not alias c's.
func (c Card) Clone() Card {
	out := c
	out.SRS = c.SRS.Clone()
	return out
}

// Validate checks the fields every card must carry.
func (c Card) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(c.SubjectID) == "" {
		errs = append(errs, errors.New("subject id is required"))
	}
	if c.Content == nil {
		errs = append(errs, errors.New("content is required"))
	} else if f := Faces(c.Content); f.Front == "" || f.Back == "" {
		errs = append(errs, fmt.Errorf("%s content has an empty side", c.Content.Kind()))
	}
	return errors.Join(errs...)
}

type cardJSON struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subjectId"`
	Kind      Kind            `json:"kind"`
	Content   json.RawMessage `json:"content"`
	SRS       *spacedrep.Data `json:"srs,omitempty"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	if c.Content == nil {
		return nil, errors.New("card: marshal card without content")
	}
	raw, err := json.Marshal(c.Content)
	if err != nil {
		return nil, fmt.Errorf("card: marshal content: %w", err)
	}
	srs := c.SRS
	return json.Marshal(cardJSON{
		ID:        c.ID,
		SubjectID: c.SubjectID,
		Kind:      c.Content.Kind(),
		Content:   raw,
		SRS:       &srs,
	})
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var env cardJSON
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("card: %w", err)
	}
	content, err := DecodeContent(env.Kind, env.Content)
	if err != nil {
		return fmt.Errorf("card %s: %w", env.ID, err)
	}
	*c = Card{
		ID:        env.ID,
		SubjectID: env.SubjectID,
		Content:   content,
		SRS:       spacedrep.NewData(),
	}
	if env.SRS != nil {
		c.SRS = *env.SRS
	}
	return nil
}
