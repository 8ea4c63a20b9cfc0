package cast

// Character defines a named cast member as authored in JSON.
type Character struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Species string `json:"species"`
	Tagline string `json:"tagline"`
	Role    int    `json:"role"` // 1=principal, 2=supporting, 3=background
}
