package species

// AllSpecies enumerates the closed set in declaration order. Used by table
// generation and by anything that must iterate every ordered pair.
var AllSpecies = []Species{
	Human, Elf, Dwarf, Orc, Demon, Beastkin,
}
