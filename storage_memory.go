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

// MemoryStorage implements all persistence ports in process memory. It backs
// standalone deployments without a database and the tests. Values are copied
// on the way in and out, so callers never share memory with the store.
type MemoryStorage struct {
	meetings     ConcurrentMap[string, Meeting]
	participants ConcurrentMap[string, Participant]
	vsMeetings   ConcurrentMap[string, VideoServerMeeting]
	vsSessions   ConcurrentMap[string, VideoServerSession]
	recordings   ConcurrentMap[string, Recording]
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func sessionKey(meetingId string, userId string) string {
	return meetingId + "/" + userId
}

func (s *MemoryStorage) GetMeeting(ctx context.Context, meetingId string) (*Meeting, error) {
	meeting, found := s.meetings.Get(meetingId)
	if !found {
		return nil, fmt.Errorf("%w: meeting %s", ErrNotFound, meetingId)
	}
	return &meeting, nil
}

func (s *MemoryStorage) SaveMeeting(ctx context.Context, meeting *Meeting) error {
	s.meetings.Set(meeting.Id, *meeting)
	return nil
}

func (s *MemoryStorage) DeleteMeeting(ctx context.Context, meetingId string) error {
	s.meetings.Del(meetingId)
	return nil
}

func (s *MemoryStorage) GetParticipant(ctx context.Context, meetingId string, userId string) (*Participant, error) {
	participant, found := s.participants.Get(sessionKey(meetingId, userId))
	if !found {
		return nil, fmt.Errorf("%w: participant %s in meeting %s", ErrNotFound, userId, meetingId)
	}
	return &participant, nil
}

func (s *MemoryStorage) ListParticipants(ctx context.Context, meetingId string) ([]*Participant, error) {
	var result []*Participant
	s.participants.Range(func(key string, value Participant) bool {
		if value.MeetingId == meetingId {
			participant := value
			result = append(result, &participant)
		}
		return true
	})
	return result, nil
}

func (s *MemoryStorage) SaveParticipant(ctx context.Context, participant *Participant) error {
	s.participants.Set(sessionKey(participant.MeetingId, participant.UserId), *participant)
	return nil
}

func (s *MemoryStorage) DeleteParticipant(ctx context.Context, meetingId string, userId string) error {
	s.participants.Del(sessionKey(meetingId, userId))
	return nil
}

func (s *MemoryStorage) GetVideoServerMeeting(ctx context.Context, meetingId string) (*VideoServerMeeting, error) {
	meeting, found := s.vsMeetings.Get(meetingId)
	if !found {
		return nil, fmt.Errorf("%w: videoserver meeting %s", ErrNotFound, meetingId)
	}
	return &meeting, nil
}

func (s *MemoryStorage) ListVideoServerMeetings(ctx context.Context) ([]*VideoServerMeeting, error) {
	var result []*VideoServerMeeting
	s.vsMeetings.Range(func(key string, value VideoServerMeeting) bool {
		meeting := value
		result = append(result, &meeting)
		return true
	})
	return result, nil
}

func (s *MemoryStorage) SaveVideoServerMeeting(ctx context.Context, meeting *VideoServerMeeting) error {
	s.vsMeetings.Set(meeting.MeetingId, *meeting)
	return nil
}

func (s *MemoryStorage) DeleteVideoServerMeeting(ctx context.Context, meetingId string) error {
	s.vsMeetings.Del(meetingId)
	return nil
}

func (s *MemoryStorage) GetVideoServerSession(ctx context.Context, meetingId string, userId string) (*VideoServerSession, error) {
	session, found := s.vsSessions.Get(sessionKey(meetingId, userId))
	if !found {
		return nil, fmt.Errorf("%w: videoserver session for %s in meeting %s", ErrNotFound, userId, meetingId)
	}
	return session.Clone(), nil
}

func (s *MemoryStorage) ListVideoServerSessions(ctx context.Context, meetingId string) ([]*VideoServerSession, error) {
	var result []*VideoServerSession
	s.vsSessions.Range(func(key string, value VideoServerSession) bool {
		if value.MeetingId == meetingId {
			result = append(result, value.Clone())
		}
		return true
	})
	return result, nil
}

func (s *MemoryStorage) SaveVideoServerSession(ctx context.Context, session *VideoServerSession) error {
	s.vsSessions.Set(sessionKey(session.MeetingId, session.UserId), *session.Clone())
	return nil
}

func (s *MemoryStorage) DeleteVideoServerSession(ctx context.Context, meetingId string, userId string) error {
	s.vsSessions.Del(sessionKey(meetingId, userId))
	return nil
}

func (s *MemoryStorage) GetRecording(ctx context.Context, meetingId string) (*Recording, error) {
	recording, found := s.recordings.Get(meetingId)
	if !found {
		return nil, fmt.Errorf("%w: recording for meeting %s", ErrNotFound, meetingId)
	}
	return &recording, nil
}

func (s *MemoryStorage) SaveRecording(ctx context.Context, recording *Recording) error {
	s.recordings.Set(recording.MeetingId, *recording)
	return nil
}

func (s *MemoryStorage) DeleteRecording(ctx context.Context, meetingId string) error {
	s.recordings.Del(meetingId)
	return nil
}
