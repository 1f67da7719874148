package feed

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

var me = models.UserRef{ID: "1"}

func TestApplySettleLikeThenUnlike(t *testing.T) {
	before := []models.Like{{ID: 3, User: models.UserRef{ID: "2"}}}

	liked, like := Apply(before, 42, me)
	if like.Kind != IntentLike || !Liked(liked, me.ID) {
		t.Fatalf("expected optimistic like, got %+v", liked)
	}
	if len(before) != 1 {
		t.Fatal("expected Apply not to modify its input")
	}
	liked = Settle(liked, like, Outcome{LikeID: 7})
	if liked[1].ID != 7 {
		t.Errorf("expected like id 7, got %d", liked[1].ID)
	}

	unliked, unlike := Apply(liked, 42, me)
	if unlike.Kind != IntentUnlike || unlike.Removed.ID != 7 {
		t.Fatalf("expected unlike of like 7, got %+v", unlike)
	}
	unliked = Settle(unliked, unlike, Outcome{})
	if !reflect.DeepEqual(unliked, before) {
		t.Errorf("expected membership to return to %+v, got %+v", before, unliked)
	}
}

func TestSettleRollback(t *testing.T) {
	rejected := errors.New("already liked")
	other := models.Like{ID: 3, User: models.UserRef{ID: "2"}}
	mine := models.Like{ID: 9, User: me}

	tests := []struct {
		name   string
		before []models.Like
	}{
		{"like", []models.Like{other}},
		{"unlike first", []models.Like{mine, other}},
		{"unlike middle", []models.Like{other, mine, {ID: 4, User: models.UserRef{ID: "5"}}}},
		{"unlike only", []models.Like{mine}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tentative, intent := Apply(tt.before, 1, me)
			got := Settle(tentative, intent, Outcome{Err: rejected})
			if !reflect.DeepEqual(got, tt.before) {
				t.Errorf("expected %+v, got %+v", tt.before, got)
			}
		})
	}
}

func TestSettleLikeWithoutID(t *testing.T) {
	tentative, intent := Apply(nil, 1, me)
	got := Settle(tentative, intent, Outcome{})
	if len(got) != 1 || !got[0].Pending() {
		t.Errorf("expected a pending like, got %+v", got)
	}
}
