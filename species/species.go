package species

import (
	"fmt"
	"strings"
)

// Species is a closed-set race tag. It carries no identity of its own and is
// used purely as a bias-lookup key.
type Species byte

const (
	Human Species = iota
	Elf
	Dwarf
	Orc
	Demon
	Beastkin

	SpeciesInvalid Species = 255
)

// SpeciesCount is the size of the closed set.
const SpeciesCount = 6

func (s Species) String() string {
	switch s {
	case Human:
		return "Human"
	case Elf:
		return "Elf"
	case Dwarf:
		return "Dwarf"
	case Orc:
		return "Orc"
	case Demon:
		return "Demon"
	case Beastkin:
		return "Beastkin"
	}
	return "Invalid"
}

// ParseSpecies converts a string (as authored in cast/bias JSON) to a Species.
func ParseSpecies(raw string) (Species, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "human":
		return Human, nil
	case "elf":
		return Elf, nil
	case "dwarf":
		return Dwarf, nil
	case "orc":
		return Orc, nil
	case "demon":
		return Demon, nil
	case "beastkin":
		return Beastkin, nil
	default:
		return SpeciesInvalid, fmt.Errorf("invalid species: %s", raw)
	}
}

// Valid reports whether s is a member of the closed set.
func (s Species) Valid() bool {
	return s < SpeciesCount
}

// MarshalText encodes the species by name, so JSON tables stay hand-editable.
func (s Species) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid species: %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Species) UnmarshalText(text []byte) error {
	parsed, err := ParseSpecies(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
