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
	"fmt"
)

// SessionRegistry is pure bookkeeping over the media-server meeting/session
// rows. It has no protocol knowledge; the orchestration layer sequences
// protocol calls and registry writes so that the registry never reflects a
// handle that doesn't exist server-side, and vice versa.
type SessionRegistry struct {
	meetings VideoServerMeetingRepository
	sessions VideoServerSessionRepository
}

func NewSessionRegistry(meetings VideoServerMeetingRepository, sessions VideoServerSessionRepository) *SessionRegistry {
	return &SessionRegistry{
		meetings: meetings,
		sessions: sessions,
	}
}

func (r *SessionRegistry) GetMeeting(ctx context.Context, meetingId string) (*VideoServerMeeting, error) {
	return r.meetings.GetVideoServerMeeting(ctx, meetingId)
}

func (r *SessionRegistry) ListMeetings(ctx context.Context) ([]*VideoServerMeeting, error) {
	return r.meetings.ListVideoServerMeetings(ctx)
}

func (r *SessionRegistry) CreateMeeting(ctx context.Context, meeting *VideoServerMeeting) error {
	return r.meetings.SaveVideoServerMeeting(ctx, meeting)
}

func (r *SessionRegistry) DeleteMeeting(ctx context.Context, meetingId string) error {
	return r.meetings.DeleteVideoServerMeeting(ctx, meetingId)
}

func (r *SessionRegistry) GetSession(ctx context.Context, meetingId string, userId string) (*VideoServerSession, error) {
	return r.sessions.GetVideoServerSession(ctx, meetingId, userId)
}

func (r *SessionRegistry) ListSessions(ctx context.Context, meetingId string) ([]*VideoServerSession, error) {
	return r.sessions.ListVideoServerSessions(ctx, meetingId)
}

func (r *SessionRegistry) CreateSession(ctx context.Context, session *VideoServerSession) error {
	return r.sessions.SaveVideoServerSession(ctx, session)
}

// UpdateSession is last-write-wins on the row identified by
// (MeetingId, UserId).
func (r *SessionRegistry) UpdateSession(ctx context.Context, session *VideoServerSession) error {
	return r.sessions.SaveVideoServerSession(ctx, session)
}

func (r *SessionRegistry) DeleteSession(ctx context.Context, meetingId string, userId string) error {
	return r.sessions.DeleteVideoServerSession(ctx, meetingId, userId)
}

// AddSubscription records the subscriber handle receiving the given remote
// feed.
func (r *SessionRegistry) AddSubscription(ctx context.Context, meetingId string, userId string, feed Feed, handleId uint64) error {
	session, err := r.sessions.GetVideoServerSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}

	if session.Subscriptions == nil {
		session.Subscriptions = make(map[string]uint64)
	}
	session.Subscriptions[feed.String()] = handleId
	return r.sessions.SaveVideoServerSession(ctx, session)
}

// RemoveSubscription forgets the subscriber handle for the given remote feed.
// The handle must already have been detached.
func (r *SessionRegistry) RemoveSubscription(ctx context.Context, meetingId string, userId string, feed Feed) error {
	session, err := r.sessions.GetVideoServerSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}

	if _, found := session.Subscriptions[feed.String()]; !found {
		return fmt.Errorf("%w: no subscription for feed %s", ErrNotFound, feed)
	}
	delete(session.Subscriptions, feed.String())
	return r.sessions.SaveVideoServerSession(ctx, session)
}
