package uuidutil

import (
	"github.com/gofrs/uuid"
)

// Generator hands out correlation and session ids. Ids must never repeat for the lifetime
// of the process.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator generates random (version 4) UUIDs.
type RandomGenerator struct{}

func (RandomGenerator) Generate() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
