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
	"strings"
)

// MediaStreamType identifies one media discipline of a participant.
type MediaStreamType string

const (
	StreamTypeAudio    MediaStreamType = "audio"
	StreamTypeVideoOut MediaStreamType = "video-out"
	StreamTypeVideoIn  MediaStreamType = "video-in"
	StreamTypeScreen   MediaStreamType = "screen"
)

func IsValidStreamType(s string) bool {
	switch s {
	case string(StreamTypeAudio):
		fallthrough
	case string(StreamTypeVideoOut):
		fallthrough
	case string(StreamTypeVideoIn):
		fallthrough
	case string(StreamTypeScreen):
		return true
	default:
		return false
	}
}

// Feed addresses one media track of one participant in one meeting. Its
// string form is used as the "opaque id" of media-server handles and as the
// correlation key for subscription updates, so the format is part of the wire
// protocol and must not change.
type Feed struct {
	Type      MediaStreamType
	UserId    string
	MeetingId string
}

func (f Feed) String() string {
	return string(f.Type) + "/" + f.UserId + "/" + f.MeetingId
}

func (f Feed) IsZero() bool {
	return f == Feed{}
}

// FeedFromString decodes a feed token. A malformed token decodes to the zero
// Feed instead of failing: existing clients send arbitrary opaque ids and the
// external protocol tolerates them.
func FeedFromString(token string) Feed {
	parts := strings.Split(token, "/")
	if len(parts) != 3 || !IsValidStreamType(parts[0]) {
		return Feed{}
	}

	return Feed{
		Type:      MediaStreamType(parts[0]),
		UserId:    parts[1],
		MeetingId: parts[2],
	}
}

// Stream associates a feed with the SDP media line the media server assigned
// to it. SubMid carries the crossrefid used when re-subscribing to a
// renegotiated publisher.
type Stream struct {
	Feed   Feed   `json:"feed"`
	Mid    string `json:"mid,omitempty"`
	SubMid string `json:"sub_mid,omitempty"`
}
