package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SwipeAction is the user's decision on a dish.
type SwipeAction string

const (
	ActionLike    SwipeAction = "like"
	ActionNeutral SwipeAction = "neutral"
	ActionDislike SwipeAction = "dislike"
)

// actionWeights maps each action to its directional weight in the profile.
var actionWeights = map[SwipeAction]float64{
	ActionLike:    1.0,
	ActionNeutral: -0.25,
	ActionDislike: -1.0,
}

// Weight returns the directional weight of the action. Unknown actions weigh 0.
func (a SwipeAction) Weight() float64 {
	return actionWeights[a]
}

// IsValid reports whether the action has a weight entry.
func (a SwipeAction) IsValid() bool {
	_, ok := actionWeights[a]
	return ok
}

// ParseSwipeAction converts a string to a SwipeAction.
func ParseSwipeAction(s string) (SwipeAction, error) {
	a := SwipeAction(s)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown swipe action %q", s)
	}
	return a, nil
}

// SwipeEvent records a decision applied to the profile.
type SwipeEvent struct {
	ID        uuid.UUID     `json:"id"`
	Dish      DishCandidate `json:"dish"`
	Action    SwipeAction   `json:"action"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewSwipeEvent creates an event stamped with the given time.
func NewSwipeEvent(dish DishCandidate, action SwipeAction, at time.Time) SwipeEvent {
	return SwipeEvent{
		ID:        uuid.New(),
		Dish:      dish,
		Action:    action,
		CreatedAt: at.UTC(),
	}
}
