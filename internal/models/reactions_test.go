package models

import "testing"

func TestResolveReaction(t *testing.T) {
	cases := []struct {
		name      string
		current   string
		requested string
		want      ReactionChange
	}{
		{"addLike", "", ReactionLike, ReactionChange{Next: ReactionLike, LikeDelta: 1, InsertNeeded: true}},
		{"addDislike", "", ReactionDislike, ReactionChange{Next: ReactionDislike, DislikeDelta: 1, InsertNeeded: true}},
		{"removeLike", ReactionLike, ReactionLike, ReactionChange{LikeDelta: -1, DeleteNeeded: true}},
		{"removeDislike", ReactionDislike, ReactionDislike, ReactionChange{DislikeDelta: -1, DeleteNeeded: true}},
		{"switchToDislike", ReactionLike, ReactionDislike, ReactionChange{Next: ReactionDislike, LikeDelta: -1, DislikeDelta: 1, UpdateNeeded: true}},
		{"switchToLike", ReactionDislike, ReactionLike, ReactionChange{Next: ReactionLike, LikeDelta: 1, DislikeDelta: -1, UpdateNeeded: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveReaction(tc.current, tc.requested)
			if got != tc.want {
				t.Fatalf("unexpected change: got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestResolveReactionTwiceReturnsToNone(t *testing.T) {
	first := ResolveReaction("", ReactionLike)
	second := ResolveReaction(first.Next, ReactionLike)

	if second.Next != "" {
		t.Fatalf("expected reaction to be removed, got %q", second.Next)
	}
	if first.LikeDelta+second.LikeDelta != 0 {
		t.Fatalf("expected like counter to net zero, got %d", first.LikeDelta+second.LikeDelta)
	}
}

func TestAuthorLabel(t *testing.T) {
	if got := (Author{DisplayName: "Grace", Name: "G", Email: "g@example.com"}).Label("Unknown"); got != "Grace" {
		t.Fatalf("expected display name, got %q", got)
	}
	if got := (Author{Name: "Caleb", Email: "c@example.com"}).Label("Unknown"); got != "Caleb" {
		t.Fatalf("expected user name, got %q", got)
	}
	if got := (Author{Email: "faith@example.com"}).Label("Unknown"); got != "faith@example.com" {
		t.Fatalf("expected email, got %q", got)
	}
	if got := (Author{}).Label("A Believer"); got != "A Believer" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestClampCount(t *testing.T) {
	if ClampCount(-2) != 0 || ClampCount(3) != 3 {
		t.Fatal("unexpected clamp results")
	}
}
