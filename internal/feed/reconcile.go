// Package feed applies like and comment mutations to feed resources before
// the server confirms them and converges with the server's answer.
package feed

import (
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

type IntentKind int

const (
	IntentLike IntentKind = iota
	IntentUnlike
)

func (k IntentKind) String() string {
	if k == IntentUnlike {
		return "unlike"
	}
	return "like"
}

// Intent records one optimistic step so that it can be settled or inverted.
type Intent struct {
	Kind       IntentKind
	ResourceID int64
	User       models.UserRef

	// Removed and Index locate the like an unlike took out.
	Removed models.Like
	Index   int
}

// Outcome is the server's answer to an Intent.
type Outcome struct {
	Err    error
	LikeID int64
}

func indexOf(likes []models.Like, user models.UserID) int {
	for i, l := range likes {
		if l.User.ID == user {
			return i
		}
	}
	return -1
}

// Liked reports whether user has a like in likes.
func Liked(likes []models.Like, user models.UserID) bool {
	return indexOf(likes, user) >= 0
}

// Apply flips user's membership in likes. The input slice is not modified.
func Apply(likes []models.Like, resourceID int64, user models.UserRef) ([]models.Like, Intent) {
	intent := Intent{ResourceID: resourceID, User: user}
	if i := indexOf(likes, user.ID); i >= 0 {
		intent.Kind = IntentUnlike
		intent.Removed = likes[i]
		intent.Index = i
		out := make([]models.Like, 0, len(likes)-1)
		out = append(out, likes[:i]...)
		return append(out, likes[i+1:]...), intent
	}
	intent.Kind = IntentLike
	out := make([]models.Like, 0, len(likes)+1)
	out = append(out, likes...)
	return append(out, models.Like{User: user}), intent
}

// Settle converges likes with the outcome of intent. On failure the optimistic
// step is inverted exactly.
func Settle(likes []models.Like, intent Intent, outcome Outcome) []models.Like {
	out := append([]models.Like(nil), likes...)

	switch intent.Kind {
	case IntentLike:
		i := indexOf(out, intent.User.ID)
		if outcome.Err != nil {
			if i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
			return out
		}
		if i >= 0 && out[i].Pending() && outcome.LikeID != 0 {
			out[i].ID = outcome.LikeID
		}
		return out

	case IntentUnlike:
		if outcome.Err == nil || indexOf(out, intent.User.ID) >= 0 {
			return out
		}
		at := intent.Index
		if at > len(out) {
			at = len(out)
		}
		out = append(out, models.Like{})
		copy(out[at+1:], out[at:])
		out[at] = intent.Removed
		return out
	}
	return out
}
