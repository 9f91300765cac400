package valueobjects

// InteractionType names the outcome class of a resolved pair
type InteractionType string

const (
	InteractionMerge   InteractionType = "merge"
	InteractionBond    InteractionType = "bond"
	InteractionRepel   InteractionType = "repel"
	InteractionAttract InteractionType = "attract"
	InteractionNone    InteractionType = "none"
)

// String returns the wire name of the interaction type
func (t InteractionType) String() string {
	return string(t)
}
