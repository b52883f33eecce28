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
)

// The persistence ports. The core never depends on a concrete storage
// engine; rows are the source of truth across restarts and are only touched
// through these interfaces, never cached beyond a single operation.
//
// Get methods return ErrNotFound (possibly wrapped) for missing rows.
// Save is an upsert; Delete on a missing row is not an error.

type MeetingRepository interface {
	GetMeeting(ctx context.Context, meetingId string) (*Meeting, error)
	SaveMeeting(ctx context.Context, meeting *Meeting) error
	DeleteMeeting(ctx context.Context, meetingId string) error
}

type ParticipantRepository interface {
	GetParticipant(ctx context.Context, meetingId string, userId string) (*Participant, error)
	ListParticipants(ctx context.Context, meetingId string) ([]*Participant, error)
	SaveParticipant(ctx context.Context, participant *Participant) error
	DeleteParticipant(ctx context.Context, meetingId string, userId string) error
}

type VideoServerMeetingRepository interface {
	GetVideoServerMeeting(ctx context.Context, meetingId string) (*VideoServerMeeting, error)
	ListVideoServerMeetings(ctx context.Context) ([]*VideoServerMeeting, error)
	SaveVideoServerMeeting(ctx context.Context, meeting *VideoServerMeeting) error
	DeleteVideoServerMeeting(ctx context.Context, meetingId string) error
}

type VideoServerSessionRepository interface {
	GetVideoServerSession(ctx context.Context, meetingId string, userId string) (*VideoServerSession, error)
	ListVideoServerSessions(ctx context.Context, meetingId string) ([]*VideoServerSession, error)
	SaveVideoServerSession(ctx context.Context, session *VideoServerSession) error
	DeleteVideoServerSession(ctx context.Context, meetingId string, userId string) error
}

type RecordingRepository interface {
	GetRecording(ctx context.Context, meetingId string) (*Recording, error)
	SaveRecording(ctx context.Context, recording *Recording) error
	DeleteRecording(ctx context.Context, meetingId string) error
}

// Storage is what a storage engine has to provide to back the full service.
type Storage interface {
	MeetingRepository
	ParticipantRepository
	VideoServerMeetingRepository
	VideoServerSessionRepository
	RecordingRepository
}
