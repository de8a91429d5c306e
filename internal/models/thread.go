package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a durable conversation between exactly two users. The
// participant pair is immutable and unique regardless of order.
type Thread struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FirstPerson  uuid.UUID `db:"first_person" json:"first_person"`
	SecondPerson uuid.UUID `db:"second_person" json:"second_person"`
	Updated      time.Time `db:"updated" json:"updated"`
}

// HasParticipant reports whether the user is one of the two participants.
func (t Thread) HasParticipant(userID uuid.UUID) bool {
	return t.FirstPerson == userID || t.SecondPerson == userID
}

// OtherParticipant returns the participant that is not userID. The caller
// must have verified membership first.
func (t Thread) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if t.FirstPerson == userID {
		return t.SecondPerson
	}
	return t.FirstPerson
}

// ThreadSummary is the API-friendly view of a thread for one participant.
type ThreadSummary struct {
	ThreadID  uuid.UUID `db:"id" json:"thread_id"`
	PartnerID uuid.UUID `json:"partner_id"`
	Updated   time.Time `db:"updated" json:"updated"`
}
