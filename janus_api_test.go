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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioBridgeCreateRequestDefaults(t *testing.T) {
	t.Parallel()

	req := NewAudioBridgeCreateRequest("meeting-1")
	assert.Equal(t, "create", req.Request)
	assert.True(t, strings.HasPrefix(req.Room, "audio_"))
	assert.False(t, req.Permanent)
	assert.Equal(t, uint32(16000), req.SamplingRate)
	assert.True(t, req.AudioLevelExt)
	assert.True(t, req.AudioLevelEvent)
	assert.Equal(t, int64(10), req.AudioActivePackets)
	assert.Equal(t, 55, req.AudioLevelAverage)

	// Two meetings never share a room id.
	other := NewAudioBridgeCreateRequest("meeting-1")
	assert.NotEqual(t, req.Room, other.Room)
}

func TestAudioBridgeCreateRequestWireFormat(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewAudioBridgeCreateRequest("meeting-1"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "sampling_rate")
	assert.Contains(t, fields, "audiolevel_ext")
	assert.Contains(t, fields, "audiolevel_event")
	assert.Contains(t, fields, "audio_active_packets")
	assert.Contains(t, fields, "audio_level_average")
	assert.Equal(t, float64(16000), fields["sampling_rate"])
}

func TestVideoRoomCreateRequestDefaults(t *testing.T) {
	t.Parallel()

	req := NewVideoRoomCreateRequest("meeting-1")
	assert.Equal(t, "create", req.Request)
	assert.True(t, strings.HasPrefix(req.Room, "video_"))
	assert.False(t, req.Permanent)
	assert.Equal(t, 100, req.Publishers)
	assert.Equal(t, uint64(200), req.Bitrate)
	assert.True(t, req.BitrateCap)
	assert.Equal(t, "vp8,h264,vp9", req.VideoCodec)
}

func TestVideoRoomCreateRequestWireFormat(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewVideoRoomCreateRequest("meeting-1"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "publishers")
	assert.Contains(t, fields, "bitrate")
	assert.Contains(t, fields, "bitrate_cap")
	assert.Contains(t, fields, "videocodec")
	assert.Equal(t, "vp8,h264,vp9", fields["videocodec"])
}

func TestVideoRoomJoinRequests(t *testing.T) {
	t.Parallel()

	feed := Feed{Type: StreamTypeVideoOut, UserId: "alice", MeetingId: "m1"}

	publisher := NewVideoRoomPublisherJoinRequest("video_abc", feed)
	assert.Equal(t, "join", publisher.Request)
	assert.Equal(t, "publisher", publisher.PType)
	assert.Equal(t, "video_abc", publisher.Room)
	assert.Equal(t, feed.String(), publisher.Id)

	subscriber := NewVideoRoomSubscriberJoinRequest("video_abc", feed)
	assert.Equal(t, "join", subscriber.Request)
	assert.Equal(t, "subscriber", subscriber.PType)
	require.Len(t, subscriber.Streams, 1)
	assert.Equal(t, feed.String(), subscriber.Streams[0].Feed)
}

func TestJanusRequestTransactions(t *testing.T) {
	t.Parallel()

	first := newJanusRequest(janusCreate)
	second := newJanusRequest(janusCreate)
	assert.NotEmpty(t, first.Transaction)
	assert.NotEqual(t, first.Transaction, second.Transaction)
	assert.Equal(t, "create", first.Janus)
}

func TestJanusResponseDecode(t *testing.T) {
	t.Parallel()

	payload := `{
		"janus": "success",
		"session_id": 12345,
		"transaction": "tx-1",
		"sender": 678,
		"plugindata": {
			"plugin": "janus.plugin.audiobridge",
			"data": {"audiobridge": "created", "room": "audio_xyz"}
		},
		"jsep": {"type": "answer", "sdp": "v=0"}
	}`

	var resp JanusResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	assert.Equal(t, janusSuccess, resp.Janus)
	assert.Equal(t, uint64(12345), resp.SessionId)
	assert.Equal(t, "tx-1", resp.Transaction)
	assert.Equal(t, uint64(678), resp.Sender)
	require.NotNil(t, resp.PluginData)
	assert.Equal(t, pluginAudioBridge, resp.PluginData.Plugin)
	require.NotNil(t, resp.Jsep)
	assert.Equal(t, "answer", resp.Jsep.Type)

	var bridge AudioBridgeResponse
	require.NoError(t, json.Unmarshal(resp.PluginData.Data, &bridge))
	assert.Equal(t, "created", bridge.AudioBridge)
	assert.Equal(t, "audio_xyz", bridge.Room)
}

func TestIsRoomGone(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRoomGone(&JanusError{Code: JANUS_VIDEOROOM_ERROR_NO_SUCH_ROOM}))
	assert.True(t, IsRoomGone(&JanusError{Code: JANUS_AUDIOBRIDGE_ERROR_NO_SUCH_ROOM}))
	assert.False(t, IsRoomGone(&JanusError{Code: JANUS_VIDEOROOM_ERROR_ROOM_EXISTS}))
	assert.False(t, IsRoomGone(ErrVideoServerFailed))
	assert.False(t, IsRoomGone(nil))
}
