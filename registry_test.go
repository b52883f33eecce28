/**
 * Video-conferencing signaling core for the Carbonio workstream
 * collaboration platform.
 * Copyright (C) 2026 Zextras
 *
 * @license GNU AGPL version 3 or any later version
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */
package videoserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *SessionRegistry {
	storage := NewMemoryStorage()
	return NewSessionRegistry(storage, storage)
}

func TestSessionRegistryMeetings(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.GetMeeting(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	meeting := &VideoServerMeeting{
		MeetingId:     "m1",
		ConnectionId:  1,
		AudioHandleId: 2,
		VideoHandleId: 3,
		AudioRoomId:   "audio_x",
		VideoRoomId:   "video_x",
	}
	require.NoError(t, registry.CreateMeeting(ctx, meeting))

	loaded, err := registry.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, meeting, loaded)

	require.NoError(t, registry.DeleteMeeting(ctx, "m1"))
	_, err = registry.GetMeeting(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRegistrySubscriptions(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry()
	ctx := context.Background()

	session := &VideoServerSession{MeetingId: "m1", UserId: "alice", ConnectionId: 1}
	require.NoError(t, registry.CreateSession(ctx, session))

	feed := Feed{Type: StreamTypeVideoOut, UserId: "bob", MeetingId: "m1"}
	require.NoError(t, registry.AddSubscription(ctx, "m1", "alice", feed, 42))

	loaded, err := registry.GetSession(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.Subscriptions[feed.String()])

	require.NoError(t, registry.RemoveSubscription(ctx, "m1", "alice", feed))
	loaded, err = registry.GetSession(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.Empty(t, loaded.Subscriptions)

	// Removing an unknown subscription is reported.
	err = registry.RemoveSubscription(ctx, "m1", "alice", feed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRegistryUpdateSession(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry()
	ctx := context.Background()

	session := &VideoServerSession{MeetingId: "m1", UserId: "alice", AudioOn: false}
	require.NoError(t, registry.CreateSession(ctx, session))

	session.AudioOn = true
	require.NoError(t, registry.UpdateSession(ctx, session))

	loaded, err := registry.GetSession(ctx, "m1", "alice")
	require.NoError(t, err)
	assert.True(t, loaded.AudioOn)
}
