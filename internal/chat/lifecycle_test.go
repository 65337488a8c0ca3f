package chat

import (
	"testing"

	"github.com/lalith-99/portalchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionReplaceBroadcastsFullList(t *testing.T) {
	f := newFixture(t)
	a, b := f.connect(asha), f.connect(ben)

	msg, err := f.svc.Route(f.ctx, ben, SendMessage{Content: "lunch?", ChannelID: "team-research"})
	require.NoError(t, err)

	f.send(a, asha, map[string]any{"type": "reaction_update", "message_id": msg.ID, "reaction_type": "👍", "action": "add"})
	f.send(a, asha, map[string]any{
		"type": "reaction_update", "message_id": msg.ID,
		"reaction_type": "❤️", "action": "replace", "old_reaction_type": "👍",
	})

	updates := b.ofType("reaction_update")
	require.Len(t, updates, 2)
	last := updates[1]["reactions"].([]any)
	require.Len(t, last, 1)
	entry := last[0].(map[string]any)
	assert.Equal(t, asha, entry["user_id"])
	assert.Equal(t, "❤️", entry["reaction_type"])
	assert.Equal(t, asha, updates[1]["updated_by"])
	assert.Len(t, a.ofType("reaction_update"), 2, "the reactor's own devices reconcile too")
}

func TestReactionIdempotence(t *testing.T) {
	f := newFixture(t)
	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "ship it", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)

	add := ReactionUpdate{MessageID: msg.ID, ReactionType: "🎉", Action: ReactionAdd}
	once, err := f.svc.ApplyReaction(f.ctx, ben, add)
	require.NoError(t, err)
	twice, err := f.svc.ApplyReaction(f.ctx, ben, add)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Len(t, twice, 1)

	remove := ReactionUpdate{MessageID: msg.ID, ReactionType: "👀", Action: ReactionRemove}
	after, err := f.svc.ApplyReaction(f.ctx, ben, remove)
	require.NoError(t, err)
	assert.Equal(t, twice, after, "removing a missing reaction is a no-op")

	_, err = f.svc.ApplyReaction(f.ctx, chen, add)
	assert.ErrorIs(t, err, ErrForbidden, "outsiders cannot react to a direct message")

	_, err = f.svc.ApplyReaction(f.ctx, ben, ReactionUpdate{MessageID: "nope", ReactionType: "🎉", Action: ReactionAdd})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutateReactions(t *testing.T) {
	base := []models.Reaction{{UserID: "u1", ReactionType: "👍"}, {UserID: "u2", ReactionType: "👍"}}

	got := mutateReactions(base, "u1", ReactionUpdate{Action: ReactionReplace, ReactionType: "🔥", OldReactionType: "👍"})
	assert.Equal(t, []models.Reaction{{UserID: "u2", ReactionType: "👍"}, {UserID: "u1", ReactionType: "🔥"}}, got)

	got = mutateReactions(base, "u3", ReactionUpdate{Action: ReactionReplace, ReactionType: "🔥", OldReactionType: "👍"})
	assert.Len(t, got, 3, "replace without an old entry still adds")

	got = mutateReactions(base, "u1", ReactionUpdate{Action: ReactionRemove, ReactionType: "👍"})
	assert.Equal(t, []models.Reaction{{UserID: "u2", ReactionType: "👍"}}, got)
}

func TestDeleteForEveryone(t *testing.T) {
	f := newFixture(t)
	a, b := f.connect(asha), f.connect(ben)
	_ = a

	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "wrong chat", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)

	_, err = f.svc.DeleteForEveryone(f.ctx, ben, msg.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.DeleteForEveryone(f.ctx, asha, "optimistic-123")
	assert.ErrorIs(t, err, ErrNotFound)

	redacted, err := f.svc.DeleteForEveryone(f.ctx, asha, msg.ID)
	require.NoError(t, err)
	assert.True(t, redacted.Deleted)

	updates := b.ofType("message_update")
	require.Len(t, updates, 1)
	changes := updates[0]["updates"].(map[string]any)
	assert.Equal(t, DeletedPlaceholder, changes["content"])
	assert.Equal(t, true, changes["deleted"])

	for _, viewer := range []string{asha, ben} {
		got, err := f.svc.GetMessage(f.ctx, viewer, msg.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.Equal(t, DeletedPlaceholder, got.Content)
		assert.NotNil(t, got.DeletedAt)
	}

	// Deleting again keeps the original redaction time and stays quiet.
	again, err := f.svc.DeleteForEveryone(f.ctx, asha, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.DeletedAt.Equal(*redacted.DeletedAt))
	assert.Len(t, b.ofType("message_update"), 1)

	stored, err := f.store.Messages.GetByID(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeletedAt.Equal(*redacted.DeletedAt))
}

func TestDeleteForMeVisibility(t *testing.T) {
	f := newFixture(t)
	b := f.connect(ben)

	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "minutes attached", ChannelID: "team-research"})
	require.NoError(t, err)
	keep, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "thanks", ChannelID: "team-research"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteForMe(f.ctx, ben, msg.ID))
	require.NoError(t, f.svc.DeleteForMe(f.ctx, ben, msg.ID), "repeat is a no-op")
	assert.Equal(t, 1, f.store.Tombstones.Count())
	assert.NotEmpty(t, b.ofType("message_hidden"))

	forBen, err := f.svc.ChannelMessages(f.ctx, ben, "team-research", 0)
	require.NoError(t, err)
	require.Len(t, forBen, 1)
	assert.Equal(t, keep.ID, forBen[0].ID)

	forAsha, err := f.svc.ChannelMessages(f.ctx, asha, "team-research", 0)
	require.NoError(t, err)
	assert.Len(t, forAsha, 2)

	_, err = f.svc.GetMessage(f.ctx, ben, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ChannelMessages(f.ctx, chen, "team-research", 0)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetMessage(f.ctx, chen, keep.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.DeleteForMe(f.ctx, chen, keep.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHiddenMessagesAreNotReplayed(t *testing.T) {
	f := newFixture(t)
	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "oops", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteForMe(f.ctx, ben, msg.ID))

	missed, err := f.svc.MissedMessages(f.ctx, ben)
	require.NoError(t, err)
	assert.Empty(t, missed)
}

func TestClearConversationAndChannel(t *testing.T) {
	f := newFixture(t)
	for _, content := range []string{"one", "two"} {
		_, err := f.svc.Route(f.ctx, asha, SendMessage{Content: content, RecipientID: models.Recipients{ben}})
		require.NoError(t, err)
	}
	_, err := f.svc.Route(f.ctx, ben, SendMessage{Content: "three", RecipientID: models.Recipients{asha}})
	require.NoError(t, err)
	_, err = f.svc.Route(f.ctx, asha, SendMessage{Content: "team", ChannelID: "team-research"})
	require.NoError(t, err)

	n, err := f.svc.ClearConversation(f.ctx, ben, asha)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mine, err := f.svc.DirectMessages(f.ctx, ben, asha, 0)
	require.NoError(t, err)
	assert.Empty(t, mine)
	theirs, err := f.svc.DirectMessages(f.ctx, asha, ben, 0)
	require.NoError(t, err)
	assert.Len(t, theirs, 3)

	_, err = f.svc.ClearChannel(f.ctx, chen, "team-research")
	assert.ErrorIs(t, err, ErrForbidden)

	n, err = f.svc.ClearChannel(f.ctx, ben, "team-research")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	left, err := f.svc.ChannelMessages(f.ctx, ben, "team-research", 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestMarkReadSendsReceiptsAndCounts(t *testing.T) {
	f := newFixture(t)
	a := f.connect(asha)

	first, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "a", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)
	second, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "b", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)
	_, err = f.svc.Route(f.ctx, asha, SendMessage{Content: "c", ChannelID: "general"})
	require.NoError(t, err)

	counts, err := f.svc.UnreadCounts(f.ctx, ben)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{asha: 2, "general": 1}, counts)

	b := f.connect(ben)
	f.send(b, ben, map[string]any{"type": "mark_messages_read", "message_ids": []string{first.ID, second.ID}})

	receipts := a.ofType("read_receipt")
	require.Len(t, receipts, 1)
	assert.ElementsMatch(t, []any{first.ID, second.ID}, receipts[0]["message_ids"])
	assert.Equal(t, ben, receipts[0]["read_by"])

	f.send(b, ben, map[string]any{"type": "mark_messages_read", "channel_id": "general"})

	counts, err = f.svc.UnreadCounts(f.ctx, ben)
	require.NoError(t, err)
	assert.Empty(t, counts)

	pushed := b.ofType("unread_count_update")
	require.Len(t, pushed, 2)
	assert.Empty(t, pushed[1]["counts"])

	// Re-reading does not produce another receipt, and read_by only grows.
	f.send(b, ben, map[string]any{"type": "mark_messages_read", "message_ids": []string{first.ID}})
	assert.Len(t, a.ofType("read_receipt"), 1)
	stored, err := f.store.Messages.GetByID(f.ctx, first.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{asha, ben}, stored.ReadBy)
}

func TestMarkReadIgnoresMessagesOutsideView(t *testing.T) {
	f := newFixture(t)
	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "private", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(f.ctx, chen, []string{msg.ID}, ""))
	stored, err := f.store.Messages.GetByID(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.ReadBy, chen)

	err = f.svc.MarkRead(f.ctx, chen, nil, "team-research")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPermanentDelete(t *testing.T) {
	f := newFixture(t)
	msg, err := f.svc.Route(f.ctx, asha, SendMessage{Content: "gone", RecipientID: models.Recipients{ben}})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.PermanentDelete(f.ctx, false, msg.ID), ErrForbidden)
	require.NoError(t, f.svc.PermanentDelete(f.ctx, true, msg.ID))
	assert.ErrorIs(t, f.svc.PermanentDelete(f.ctx, true, msg.ID), ErrNotFound)

	_, err = f.svc.GetMessage(f.ctx, asha, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
