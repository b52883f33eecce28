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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements all persistence ports on a PostgreSQL pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &PostgresStorage{
		pool: pool,
	}, nil
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

func notFound(err error, format string, v ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, v...))
	}
	return err
}

func (s *PostgresStorage) GetMeeting(ctx context.Context, meetingId string) (*Meeting, error) {
	stmt := `SELECT id, room_id, name, meeting_type, active, created_at FROM meetings WHERE id = $1`

	var m Meeting
	err := s.pool.QueryRow(ctx, stmt, meetingId).Scan(&m.Id, &m.RoomId, &m.Name, &m.MeetingType, &m.Active, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err, "meeting %s", meetingId)
	}
	return &m, nil
}

func (s *PostgresStorage) SaveMeeting(ctx context.Context, meeting *Meeting) error {
	stmt := `
		INSERT INTO meetings(id, room_id, name, meeting_type, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			room_id = excluded.room_id,
			name = excluded.name,
			meeting_type = excluded.meeting_type,
			active = excluded.active
	`
	_, err := s.pool.Exec(ctx, stmt, meeting.Id, meeting.RoomId, meeting.Name, meeting.MeetingType, meeting.Active, meeting.CreatedAt)
	return err
}

func (s *PostgresStorage) DeleteMeeting(ctx context.Context, meetingId string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, meetingId)
	return err
}

func (s *PostgresStorage) GetParticipant(ctx context.Context, meetingId string, userId string) (*Participant, error) {
	stmt := `
		SELECT meeting_id, user_id, queue_id, audio_on, video_on, screen_on, hand_raised_at, created_at, updated_at
		FROM participants WHERE meeting_id = $1 AND user_id = $2
	`
	var p Participant
	err := s.pool.QueryRow(ctx, stmt, meetingId, userId).Scan(&p.MeetingId, &p.UserId, &p.QueueId,
		&p.AudioOn, &p.VideoOn, &p.ScreenOn, &p.HandRaisedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "participant %s in meeting %s", userId, meetingId)
	}
	return &p, nil
}

func (s *PostgresStorage) ListParticipants(ctx context.Context, meetingId string) ([]*Participant, error) {
	stmt := `
		SELECT meeting_id, user_id, queue_id, audio_on, video_on, screen_on, hand_raised_at, created_at, updated_at
		FROM participants WHERE meeting_id = $1 ORDER BY created_at
	`
	rows, err := s.pool.Query(ctx, stmt, meetingId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.MeetingId, &p.UserId, &p.QueueId,
			&p.AudioOn, &p.VideoOn, &p.ScreenOn, &p.HandRaisedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) SaveParticipant(ctx context.Context, participant *Participant) error {
	stmt := `
		INSERT INTO participants(meeting_id, user_id, queue_id, audio_on, video_on, screen_on, hand_raised_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			queue_id = excluded.queue_id,
			audio_on = excluded.audio_on,
			video_on = excluded.video_on,
			screen_on = excluded.screen_on,
			hand_raised_at = excluded.hand_raised_at,
			updated_at = excluded.updated_at
	`
	_, err := s.pool.Exec(ctx, stmt, participant.MeetingId, participant.UserId, participant.QueueId,
		participant.AudioOn, participant.VideoOn, participant.ScreenOn, participant.HandRaisedAt,
		participant.CreatedAt, participant.UpdatedAt)
	return err
}

func (s *PostgresStorage) DeleteParticipant(ctx context.Context, meetingId string, userId string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE meeting_id = $1 AND user_id = $2`, meetingId, userId)
	return err
}

func (s *PostgresStorage) GetVideoServerMeeting(ctx context.Context, meetingId string) (*VideoServerMeeting, error) {
	stmt := `
		SELECT meeting_id, connection_id, audio_handle_id, video_handle_id, audio_room_id, video_room_id
		FROM videoserver_meetings WHERE meeting_id = $1
	`
	var m VideoServerMeeting
	err := s.pool.QueryRow(ctx, stmt, meetingId).Scan(&m.MeetingId, &m.ConnectionId,
		&m.AudioHandleId, &m.VideoHandleId, &m.AudioRoomId, &m.VideoRoomId)
	if err != nil {
		return nil, notFound(err, "videoserver meeting %s", meetingId)
	}
	return &m, nil
}

func (s *PostgresStorage) ListVideoServerMeetings(ctx context.Context) ([]*VideoServerMeeting, error) {
	stmt := `
		SELECT meeting_id, connection_id, audio_handle_id, video_handle_id, audio_room_id, video_room_id
		FROM videoserver_meetings
	`
	rows, err := s.pool.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*VideoServerMeeting
	for rows.Next() {
		var m VideoServerMeeting
		if err := rows.Scan(&m.MeetingId, &m.ConnectionId,
			&m.AudioHandleId, &m.VideoHandleId, &m.AudioRoomId, &m.VideoRoomId); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) SaveVideoServerMeeting(ctx context.Context, meeting *VideoServerMeeting) error {
	stmt := `
		INSERT INTO videoserver_meetings(meeting_id, connection_id, audio_handle_id, video_handle_id, audio_room_id, video_room_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (meeting_id) DO UPDATE SET
			connection_id = excluded.connection_id,
			audio_handle_id = excluded.audio_handle_id,
			video_handle_id = excluded.video_handle_id,
			audio_room_id = excluded.audio_room_id,
			video_room_id = excluded.video_room_id
	`
	_, err := s.pool.Exec(ctx, stmt, meeting.MeetingId, meeting.ConnectionId,
		meeting.AudioHandleId, meeting.VideoHandleId, meeting.AudioRoomId, meeting.VideoRoomId)
	return err
}

func (s *PostgresStorage) DeleteVideoServerMeeting(ctx context.Context, meetingId string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM videoserver_meetings WHERE meeting_id = $1`, meetingId)
	return err
}

func (s *PostgresStorage) GetVideoServerSession(ctx context.Context, meetingId string, userId string) (*VideoServerSession, error) {
	stmt := `
		SELECT meeting_id, user_id, queue_id, connection_id, audio_handle_id, video_out_handle_id, screen_handle_id,
			audio_on, video_on, screen_on, subscriptions, pending_offers
		FROM videoserver_sessions WHERE meeting_id = $1 AND user_id = $2
	`
	var session VideoServerSession
	var subscriptions, pendingOffers []byte
	err := s.pool.QueryRow(ctx, stmt, meetingId, userId).Scan(&session.MeetingId, &session.UserId, &session.QueueId,
		&session.ConnectionId, &session.AudioHandleId, &session.VideoOutHandleId, &session.ScreenHandleId,
		&session.AudioOn, &session.VideoOn, &session.ScreenOn, &subscriptions, &pendingOffers)
	if err != nil {
		return nil, notFound(err, "videoserver session for %s in meeting %s", userId, meetingId)
	}

	if len(subscriptions) > 0 {
		if err := json.Unmarshal(subscriptions, &session.Subscriptions); err != nil {
			return nil, err
		}
	}
	if len(pendingOffers) > 0 {
		if err := json.Unmarshal(pendingOffers, &session.PendingOffers); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

func (s *PostgresStorage) ListVideoServerSessions(ctx context.Context, meetingId string) ([]*VideoServerSession, error) {
	stmt := `
		SELECT meeting_id, user_id, queue_id, connection_id, audio_handle_id, video_out_handle_id, screen_handle_id,
			audio_on, video_on, screen_on, subscriptions, pending_offers
		FROM videoserver_sessions WHERE meeting_id = $1
	`
	rows, err := s.pool.Query(ctx, stmt, meetingId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*VideoServerSession
	for rows.Next() {
		var session VideoServerSession
		var subscriptions, pendingOffers []byte
		if err := rows.Scan(&session.MeetingId, &session.UserId, &session.QueueId,
			&session.ConnectionId, &session.AudioHandleId, &session.VideoOutHandleId, &session.ScreenHandleId,
			&session.AudioOn, &session.VideoOn, &session.ScreenOn, &subscriptions, &pendingOffers); err != nil {
			return nil, err
		}
		if len(subscriptions) > 0 {
			if err := json.Unmarshal(subscriptions, &session.Subscriptions); err != nil {
				return nil, err
			}
		}
		if len(pendingOffers) > 0 {
			if err := json.Unmarshal(pendingOffers, &session.PendingOffers); err != nil {
				return nil, err
			}
		}
		result = append(result, &session)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) SaveVideoServerSession(ctx context.Context, session *VideoServerSession) error {
	subscriptions, err := json.Marshal(session.Subscriptions)
	if err != nil {
		return err
	}
	pendingOffers, err := json.Marshal(session.PendingOffers)
	if err != nil {
		return err
	}

	stmt := `
		INSERT INTO videoserver_sessions(meeting_id, user_id, queue_id, connection_id, audio_handle_id,
			video_out_handle_id, screen_handle_id, audio_on, video_on, screen_on, subscriptions, pending_offers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			queue_id = excluded.queue_id,
			connection_id = excluded.connection_id,
			audio_handle_id = excluded.audio_handle_id,
			video_out_handle_id = excluded.video_out_handle_id,
			screen_handle_id = excluded.screen_handle_id,
			audio_on = excluded.audio_on,
			video_on = excluded.video_on,
			screen_on = excluded.screen_on,
			subscriptions = excluded.subscriptions,
			pending_offers = excluded.pending_offers
	`
	_, err = s.pool.Exec(ctx, stmt, session.MeetingId, session.UserId, session.QueueId,
		session.ConnectionId, session.AudioHandleId, session.VideoOutHandleId, session.ScreenHandleId,
		session.AudioOn, session.VideoOn, session.ScreenOn, subscriptions, pendingOffers)
	return err
}

func (s *PostgresStorage) DeleteVideoServerSession(ctx context.Context, meetingId string, userId string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM videoserver_sessions WHERE meeting_id = $1 AND user_id = $2`, meetingId, userId)
	return err
}

func (s *PostgresStorage) GetRecording(ctx context.Context, meetingId string) (*Recording, error) {
	stmt := `SELECT id, meeting_id, starter_id, status, token, started_at FROM recordings WHERE meeting_id = $1`

	var r Recording
	err := s.pool.QueryRow(ctx, stmt, meetingId).Scan(&r.Id, &r.MeetingId, &r.StarterId, &r.Status, &r.Token, &r.StartedAt)
	if err != nil {
		return nil, notFound(err, "recording for meeting %s", meetingId)
	}
	return &r, nil
}

func (s *PostgresStorage) SaveRecording(ctx context.Context, recording *Recording) error {
	stmt := `
		INSERT INTO recordings(id, meeting_id, starter_id, status, token, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (meeting_id) DO UPDATE SET
			id = excluded.id,
			starter_id = excluded.starter_id,
			status = excluded.status,
			token = excluded.token,
			started_at = excluded.started_at
	`
	_, err := s.pool.Exec(ctx, stmt, recording.Id, recording.MeetingId, recording.StarterId,
		recording.Status, recording.Token, recording.StartedAt)
	return err
}

func (s *PostgresStorage) DeleteRecording(ctx context.Context, meetingId string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM recordings WHERE meeting_id = $1`, meetingId)
	return err
}
