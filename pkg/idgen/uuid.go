package idgen

import "github.com/google/uuid"

// UUID generates random version 4 identifiers.
type UUID struct{}

func (UUID) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
