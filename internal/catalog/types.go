// Package catalog holds the static training reference data: topics with
// their question banks, and the role-to-topic assignment that decides which
// topics a user must pass.
package catalog

import (
	"errors"
	"slices"
)

// ErrNotFound is returned by lookups when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Topic is a named training subject with a pass threshold and an optional
// tutorial video.
type Topic struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	VideoURL      string `json:"video_url"`
	RequiredScore int    `json:"required_score"`
}

// Question belongs to one topic and carries its options.
type Question struct {
	ID      int64    `json:"id"`
	TopicID int64    `json:"topic_id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Option is one selectable answer. IsCorrect is never serialized; the API
// layer exposes options through view types without the flag.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"-"`
}

// Role groups users and owns a set of assigned topics.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is a learner. Every user has exactly one role.
type User struct {
	ID           int64  `json:"id"`
	RoleID       int64  `json:"role_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// CorrectOptionIDs returns the ids of the question's correct options in
// ascending order.
func (q Question) CorrectOptionIDs() []int64 {
	var ids []int64
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// HasOption reports whether id belongs to one of the question's options.
func (q Question) HasOption(id int64) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}
