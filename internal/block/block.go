package block

// ID identifies a block material. Zero is air.
type ID uint32

const (
	Air ID = iota
	Stone
	Grass
	Dirt
)

// IsAir reports whether the block is empty space.
func (id ID) IsAir() bool {
	return id == Air
}

// Carvable reports whether tunnel carving may remove the block.
func (id ID) Carvable() bool {
	return id == Stone || id == Dirt
}

func (id ID) String() string {
	switch id {
	case Air:
		return "air"
	case Stone:
		return "stone"
	case Grass:
		return "grass"
	case Dirt:
		return "dirt"
	default:
		return "unknown"
	}
}
