package models

// ReactionChange describes how a toggle alters a user's reaction on a post.
type ReactionChange struct {
	// Next is the reaction after the toggle, or empty when it was removed.
	Next         string
	LikeDelta    int
	DislikeDelta int
	InsertNeeded bool
	DeleteNeeded bool
	UpdateNeeded bool
}

// ResolveReaction applies the toggle rules: repeating the current reaction
// removes it, picking the other one switches it, and no prior reaction adds it.
func ResolveReaction(current, requested string) ReactionChange {
	switch {
	case current == "":
		change := ReactionChange{Next: requested, InsertNeeded: true}
		change.bump(requested, 1)
		return change
	case current == requested:
		change := ReactionChange{DeleteNeeded: true}
		change.bump(requested, -1)
		return change
	default:
		change := ReactionChange{Next: requested, UpdateNeeded: true}
		change.bump(current, -1)
		change.bump(requested, 1)
		return change
	}
}

func (c *ReactionChange) bump(reaction string, delta int) {
	if reaction == ReactionLike {
		c.LikeDelta += delta
		return
	}
	c.DislikeDelta += delta
}

// ValidReaction reports whether reaction is a known kind.
func ValidReaction(reaction string) bool {
	return reaction == ReactionLike || reaction == ReactionDislike
}

// ClampCount keeps derived counters from going negative.
func ClampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
