package relation

import "fmt"

// Config bounds the pairwise value domain. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// Starting value for every ordered pair before bias.
	BaseValue int

	// Inclusive clamp bounds enforced on every write.
	MinValue int
	MaxValue int
}

// DefaultConfig returns the canonical 50-in-[1,100] domain.
func DefaultConfig() Config {
	return Config{
		BaseValue: 50,
		MinValue:  1,
		MaxValue:  100,
	}
}

func (c Config) validate() error {
	if c.MinValue < 0 {
		return fmt.Errorf("MinValue must be >= 0")
	}
	if c.MinValue > c.MaxValue {
		return fmt.Errorf("MinValue must be <= MaxValue")
	}
	if c.BaseValue < c.MinValue || c.BaseValue > c.MaxValue {
		return fmt.Errorf("BaseValue %d outside [%d,%d]", c.BaseValue, c.MinValue, c.MaxValue)
	}
	return nil
}

func (c Config) clamp(v int) int {
	if v < c.MinValue {
		return c.MinValue
	}
	if v > c.MaxValue {
		return c.MaxValue
	}
	return v
}
