package models

// UserModel carries the interest segments targeting decisions are made
// against. An empty model means only untargeted creatives are eligible.
type UserModel struct {
	InterestSegments []string
}
