package user

import "errors"

var ErrNotFound = errors.New("user not found")

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public is what an event exposes about each registrant.
type Public struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Public() Public {
	return Public{ID: u.ID, Name: u.Name, Email: u.Email}
}
