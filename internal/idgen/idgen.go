// Package idgen generates application-level document identifiers.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// alphabet is URL-safe and free of punctuation so ids can sit in paths unescaped.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the number of random characters in an id.
const DefaultLength = 16

// Generator produces ids of the form <prefix><random>.
type Generator struct {
	Prefix string
	Length int
}

// New returns a Generator. A length below 8 selects DefaultLength.
func New(prefix string, length int) *Generator {
	if length < 8 {
		length = DefaultLength
	}
	return &Generator{Prefix: prefix, Length: length}
}

// Next returns a new id.
func (g *Generator) Next() (string, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}
	id, err := nanoid.Generate(alphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return g.Prefix + id, nil
}
