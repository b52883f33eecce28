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
	"maps"
	"time"
)

// Clock abstracts time for entities so tests can construct rows with
// deterministic timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func SystemClock() Clock {
	return systemClock{}
}

type MeetingType string

const (
	MeetingTypeScheduled MeetingType = "scheduled"
	MeetingTypePermanent MeetingType = "permanent"
)

// Meeting is one conferencing session, tied 1:1 to a chat room. It owns its
// participants; deleting a meeting cascades.
type Meeting struct {
	Id          string
	RoomId      string
	Name        string
	MeetingType MeetingType
	Active      bool
	CreatedAt   time.Time
}

// Participant is one user's presence in one meeting, keyed by
// (MeetingId, UserId).
type Participant struct {
	MeetingId string
	UserId    string
	// QueueId is the per-meeting session id used to push events to the user.
	QueueId      string
	AudioOn      bool
	VideoOn      bool
	ScreenOn     bool
	HandRaisedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VideoServerMeeting maps an application meeting to the two plugin rooms the
// media server requires, plus the control connection the rooms were created
// on. The connection is kept alive for the meeting lifetime and reused for
// the room teardown.
type VideoServerMeeting struct {
	MeetingId    string
	ConnectionId uint64
	// AudioHandleId is the audio-bridge plugin handle the room was created on.
	AudioHandleId uint64
	// VideoHandleId is the video-room plugin handle the room was created on.
	VideoHandleId uint64
	AudioRoomId   string
	VideoRoomId   string
}

// VideoServerSession is the per-participant media-server state, keyed by
// (MeetingId, UserId). Subscriptions maps the feed token of a remote stream
// to the subscriber handle currently receiving it; a handle is present if
// and only if the subscription is active.
type VideoServerSession struct {
	MeetingId string
	UserId    string
	QueueId   string

	ConnectionId     uint64
	AudioHandleId    uint64
	VideoOutHandleId uint64
	ScreenHandleId   uint64

	AudioOn  bool
	VideoOn  bool
	ScreenOn bool

	Subscriptions map[string]uint64

	// PendingOffers lists feed tokens whose subscriber negotiation is waiting
	// for the client's SDP answer, oldest first.
	PendingOffers []string
}

// Clone returns a deep copy, so callers can mutate the result without
// affecting stored state.
func (s *VideoServerSession) Clone() *VideoServerSession {
	clone := *s
	clone.Subscriptions = maps.Clone(s.Subscriptions)
	clone.PendingOffers = append([]string(nil), s.PendingOffers...)
	return &clone
}

// Handles returns every media-server handle the session owns.
func (s *VideoServerSession) Handles() []uint64 {
	var handles []uint64
	for _, id := range []uint64{s.AudioHandleId, s.VideoOutHandleId, s.ScreenHandleId} {
		if id != 0 {
			handles = append(handles, id)
		}
	}
	for _, id := range s.Subscriptions {
		handles = append(handles, id)
	}
	return handles
}

type RecordingStatus string

const (
	RecordingStatusStarted RecordingStatus = "STARTED"
	RecordingStatusStopped RecordingStatus = "STOPPED"
)

// Recording is the bookkeeping row for one meeting recording. Token
// authorizes the post-processing request towards the recorder service.
type Recording struct {
	Id        string
	MeetingId string
	StarterId string
	Status    RecordingStatus
	Token     string
	StartedAt time.Time
}
