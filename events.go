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

// EventDispatcher is the fire-and-forget fan-out port towards the rest of
// the platform. The core never waits for delivery confirmation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, userIds []string, event DomainEvent)
	Close()
}

type DomainEvent interface {
	EventType() string
}

type MeetingParticipantJoinedEvent struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
}

func (e MeetingParticipantJoinedEvent) EventType() string {
	return "meeting_participant_joined"
}

type MeetingParticipantLeftEvent struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
}

func (e MeetingParticipantLeftEvent) EventType() string {
	return "meeting_participant_left"
}

type MeetingMediaStreamChangedEvent struct {
	MeetingId string          `json:"meeting_id"`
	UserId    string          `json:"user_id"`
	Type      MediaStreamType `json:"type"`
	Enabled   bool            `json:"enabled"`
}

func (e MeetingMediaStreamChangedEvent) EventType() string {
	return "meeting_media_stream_changed"
}

// MeetingSdpOfferedEvent carries a media-server initiated SDP offer that the
// addressed user has to answer, e.g. for a newly added subscription.
type MeetingSdpOfferedEvent struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
	Feed      string `json:"feed"`
	Sdp       string `json:"sdp"`
}

func (e MeetingSdpOfferedEvent) EventType() string {
	return "meeting_sdp_offered"
}

type MeetingRecordingStartedEvent struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
}

func (e MeetingRecordingStartedEvent) EventType() string {
	return "meeting_recording_started"
}

type MeetingRecordingStoppedEvent struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
}

func (e MeetingRecordingStoppedEvent) EventType() string {
	return "meeting_recording_stopped"
}

// NullEventDispatcher drops all events. Used when no events transport is
// configured.
type NullEventDispatcher struct{}

func (d NullEventDispatcher) Dispatch(ctx context.Context, userIds []string, event DomainEvent) {
}

func (d NullEventDispatcher) Close() {
}
