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
	"errors"
	"fmt"
)

var (
	// ErrVideoServerFailed covers every transport-level failure when talking
	// to the media server: connection refused, timeout, malformed HTTP.
	// Callers don't need to distinguish it from a remote protocol error when
	// deciding whether to retry.
	ErrVideoServerFailed = errors.New("videoserver request failed")

	// ErrConflict is returned when an operation would duplicate existing
	// state, e.g. joining a meeting twice. Detected locally, no network call
	// is made.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when an operation references local state that
	// doesn't exist, e.g. configuring a handle that was never created.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSdp is returned when an SDP payload can't be parsed or
	// doesn't carry the negotiated media kind. Detected locally, no network
	// call is made.
	ErrInvalidSdp = errors.New("invalid sdp")
)

// JanusError is a well-formed error response from the media server, with the
// remote code and reason preserved for diagnostics.
type JanusError struct {
	Code   int
	Reason string
}

func (e *JanusError) Error() string {
	return fmt.Sprintf("janus error %d: %s", e.Code, e.Reason)
}

// IsRoomGone reports whether the error means the addressed plugin room no
// longer exists on the media server. Teardown paths treat this as success.
func IsRoomGone(err error) bool {
	var je *JanusError
	if !errors.As(err, &je) {
		return false
	}

	switch je.Code {
	case JANUS_VIDEOROOM_ERROR_NO_SUCH_ROOM, JANUS_AUDIOBRIDGE_ERROR_NO_SUCH_ROOM:
		return true
	default:
		return false
	}
}
