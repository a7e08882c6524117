package model

// Location is where a tagged item physically is.
type Location string

const (
	LocationWardrobe  Location = "wardrobe"
	LocationBeingWorn Location = "being_worn"
)

// Toggled returns the location a repeated scan moves to.
func (l Location) Toggled() Location {
	if l == LocationWardrobe {
		return LocationBeingWorn
	}
	return LocationWardrobe
}

func (l Location) Valid() bool {
	return l == LocationWardrobe || l == LocationBeingWorn
}
