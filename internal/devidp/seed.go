package devidp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed lists identities to create at startup.
//
//	identities:
//	  - email: tester+clerk_test@example.com
type Seed struct {
	Identities []SeedIdentity `yaml:"identities"`
}

// SeedIdentity is one seeded account.
type SeedIdentity struct {
	Email string `yaml:"email"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("devidp: parse seed: %w", err)
	}
	return &seed, nil
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devidp: read seed: %w", err)
	}
	return ParseSeed(data)
}

// ApplySeed registers every seeded identity that does not exist yet.
func (s *Server) ApplySeed(ctx context.Context, seed *Seed) error {
	for _, si := range seed.Identities {
		email := strings.ToLower(strings.TrimSpace(si.Email))
		if _, err := s.CreateIdentity(ctx, email); err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("devidp: seed %q: %w", si.Email, err)
		}
	}
	return nil
}
