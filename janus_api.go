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

	"github.com/google/uuid"
)

const (
	pluginAudioBridge = "janus.plugin.audiobridge"
	pluginVideoRoom   = "janus.plugin.videoroom"
)

// Commands and statuses of the media-server protocol. Field names and values
// are mandated by the external protocol; any deviation breaks
// interoperability with a real Janus-compatible server.
const (
	janusCreate    = "create"
	janusDestroy   = "destroy"
	janusAttach    = "attach"
	janusDetach    = "detach"
	janusMessage   = "message"
	janusTrickle   = "trickle"
	janusKeepAlive = "keepalive"
	janusHangUp    = "hangup"
	janusInfo      = "info"

	janusAck        = "ack"
	janusSuccess    = "success"
	janusEvent      = "event"
	janusError      = "error"
	janusServerInfo = "server_info"
)

const (
	/*! \brief Success (no error) */
	JANUS_OK = 0

	/*! \brief Unauthorized (can only happen when using apisecret/auth token) */
	JANUS_ERROR_UNAUTHORIZED = 403
	/*! \brief Unauthorized access to a plugin (can only happen when using auth token) */
	JANUS_ERROR_UNAUTHORIZED_PLUGIN = 405
	/*! \brief Unknown/undocumented error */
	JANUS_ERROR_UNKNOWN = 490
	/*! \brief Transport related error */
	JANUS_ERROR_TRANSPORT_SPECIFIC = 450
	/*! \brief The request is missing in the message */
	JANUS_ERROR_MISSING_REQUEST = 452
	/*! \brief The gateway does not suppurt this request */
	JANUS_ERROR_UNKNOWN_REQUEST = 453
	/*! \brief The payload is not a valid JSON message */
	JANUS_ERROR_INVALID_JSON = 454
	/*! \brief The object is not a valid JSON object as expected */
	JANUS_ERROR_INVALID_JSON_OBJECT = 455
	/*! \brief A mandatory element is missing in the message */
	JANUS_ERROR_MISSING_MANDATORY_ELEMENT = 456
	/*! \brief The request cannot be handled for this webserver path  */
	JANUS_ERROR_INVALID_REQUEST_PATH = 457
	/*! \brief The session the request refers to doesn't exist */
	JANUS_ERROR_SESSION_NOT_FOUND = 458
	/*! \brief The handle the request refers to doesn't exist */
	JANUS_ERROR_HANDLE_NOT_FOUND = 459
	/*! \brief The plugin the request wants to talk to doesn't exist */
	JANUS_ERROR_PLUGIN_NOT_FOUND = 460
	/*! \brief An error occurring when trying to attach to a plugin and create a handle  */
	JANUS_ERROR_PLUGIN_ATTACH = 461
	/*! \brief An error occurring when trying to send a message/request to the plugin */
	JANUS_ERROR_PLUGIN_MESSAGE = 462
	/*! \brief An error occurring when trying to detach from a plugin and destroy the related handle  */
	JANUS_ERROR_PLUGIN_DETACH = 463
	/*! \brief The gateway doesn't support this SDP type */
	JANUS_ERROR_JSEP_UNKNOWN_TYPE = 464
	/*! \brief The Session Description provided by the peer is invalid */
	JANUS_ERROR_JSEP_INVALID_SDP = 465
	/*! \brief The stream a trickle candidate for does not exist or is invalid */
	JANUS_ERROR_TRICKE_INVALID_STREAM = 466
	/*! \brief A JSON element is of the wrong type (e.g., an integer instead of a string) */
	JANUS_ERROR_INVALID_ELEMENT_TYPE = 467
	/*! \brief The ID provided to create a new session is already in use */
	JANUS_ERROR_SESSION_CONFLICT = 468
	/*! \brief We got an ANSWER to an OFFER we never made */
	JANUS_ERROR_UNEXPECTED_ANSWER = 469
	/*! \brief The auth token the request refers to doesn't exist */
	JANUS_ERROR_TOKEN_NOT_FOUND = 470

	// Error codes of videoroom plugin.
	JANUS_VIDEOROOM_ERROR_UNKNOWN_ERROR     = 499
	JANUS_VIDEOROOM_ERROR_NO_MESSAGE        = 421
	JANUS_VIDEOROOM_ERROR_INVALID_JSON      = 422
	JANUS_VIDEOROOM_ERROR_INVALID_REQUEST   = 423
	JANUS_VIDEOROOM_ERROR_JOIN_FIRST        = 424
	JANUS_VIDEOROOM_ERROR_ALREADY_JOINED    = 425
	JANUS_VIDEOROOM_ERROR_NO_SUCH_ROOM      = 426
	JANUS_VIDEOROOM_ERROR_ROOM_EXISTS       = 427
	JANUS_VIDEOROOM_ERROR_NO_SUCH_FEED      = 428
	JANUS_VIDEOROOM_ERROR_MISSING_ELEMENT   = 429
	JANUS_VIDEOROOM_ERROR_INVALID_ELEMENT   = 430
	JANUS_VIDEOROOM_ERROR_INVALID_SDP_TYPE  = 431
	JANUS_VIDEOROOM_ERROR_PUBLISHERS_FULL   = 432
	JANUS_VIDEOROOM_ERROR_UNAUTHORIZED      = 433
	JANUS_VIDEOROOM_ERROR_ALREADY_PUBLISHED = 434
	JANUS_VIDEOROOM_ERROR_NOT_PUBLISHED     = 435
	JANUS_VIDEOROOM_ERROR_ID_EXISTS         = 436
	JANUS_VIDEOROOM_ERROR_INVALID_SDP       = 437

	// Error codes of audiobridge plugin.
	JANUS_AUDIOBRIDGE_ERROR_NO_MESSAGE      = 480
	JANUS_AUDIOBRIDGE_ERROR_INVALID_JSON    = 481
	JANUS_AUDIOBRIDGE_ERROR_INVALID_REQUEST = 482
	JANUS_AUDIOBRIDGE_ERROR_MISSING_ELEMENT = 483
	JANUS_AUDIOBRIDGE_ERROR_INVALID_ELEMENT = 484
	JANUS_AUDIOBRIDGE_ERROR_NO_SUCH_ROOM    = 485
	JANUS_AUDIOBRIDGE_ERROR_ROOM_EXISTS     = 486
	JANUS_AUDIOBRIDGE_ERROR_NOT_JOINED      = 487
	JANUS_AUDIOBRIDGE_ERROR_LIBOPUS_ERROR   = 488
	JANUS_AUDIOBRIDGE_ERROR_UNAUTHORIZED    = 489
	JANUS_AUDIOBRIDGE_ERROR_ID_EXISTS       = 490
	JANUS_AUDIOBRIDGE_ERROR_UNKNOWN_ERROR   = 499
)

// Defaults applied when an ephemeral room is created without explicit
// overrides. These are policy, not protocol, but the remote media server and
// the recorder service are configured to assume them, so the literals must
// match exactly.
const (
	defaultSamplingRate       = uint32(16000)
	defaultAudioActivePackets = int64(10)
	defaultAudioLevelAverage  = 55
	defaultMaxPublishers      = 100
	defaultVideoBitrate       = uint64(200)
	defaultVideoCodecs        = "vp8,h264,vp9"
)

// Jsep is an SDP offer or answer exchanged during WebRTC negotiation.
type Jsep struct {
	Type string `json:"type"`
	Sdp  string `json:"sdp"`
}

func OfferJsep(sdp string) *Jsep {
	return &Jsep{Type: "offer", Sdp: sdp}
}

func AnswerJsep(sdp string) *Jsep {
	return &Jsep{Type: "answer", Sdp: sdp}
}

// TrickleCandidate is a single ICE candidate, or a completed marker to signal
// that all candidates have been sent.
type TrickleCandidate struct {
	SdpMid        string `json:"sdpMid,omitempty"`
	SdpMLineIndex int    `json:"sdpMLineIndex,omitempty"`
	Candidate     string `json:"candidate,omitempty"`

	Completed bool `json:"completed,omitempty"`
}

// PluginBody is one plugin-specific request payload. Implementations form a
// closed set of variants selected by the plugin they address.
type PluginBody interface {
	PluginName() string
}

// JanusRequest is the outbound protocol envelope.
type JanusRequest struct {
	Janus       string            `json:"janus"`
	Transaction string            `json:"transaction"`
	Plugin      string            `json:"plugin,omitempty"`
	OpaqueId    string            `json:"opaque_id,omitempty"`
	ApiSecret   string            `json:"apisecret,omitempty"`
	Body        PluginBody        `json:"body,omitempty"`
	Jsep        *Jsep             `json:"jsep,omitempty"`
	Candidate   *TrickleCandidate `json:"candidate,omitempty"`
}

func newJanusRequest(command string) *JanusRequest {
	return &JanusRequest{
		Janus:       command,
		Transaction: uuid.NewString(),
	}
}

type JanusDataId struct {
	Id uint64 `json:"id"`
}

type JanusErrorData struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data"`
}

// JanusResponse is the inbound protocol envelope.
type JanusResponse struct {
	Janus       string          `json:"janus"`
	SessionId   uint64          `json:"session_id,omitempty"`
	Transaction string          `json:"transaction,omitempty"`
	Sender      uint64          `json:"sender,omitempty"`
	Data        *JanusDataId    `json:"data,omitempty"`
	PluginData  *PluginData     `json:"plugindata,omitempty"`
	Jsep        *Jsep           `json:"jsep,omitempty"`
	Error       *JanusErrorData `json:"error,omitempty"`
}

type PluginInfo struct {
	Name          string `json:"name"`
	Author        string `json:"author"`
	Description   string `json:"description"`
	VersionString string `json:"version_string"`
	Version       int    `json:"version"`
}

// ServerInfo is the response to an "info" probe.
type ServerInfo struct {
	Janus         string                `json:"janus"`
	Name          string                `json:"name"`
	Version       int                   `json:"version"`
	VersionString string                `json:"version_string"`
	Author        string                `json:"author"`
	DataChannels  bool                  `json:"data_channels"`
	FullTrickle   bool                  `json:"full-trickle"`
	LocalIP       string                `json:"local-ip"`
	Transports    map[string]PluginInfo `json:"transports"`
	Plugins       map[string]PluginInfo `json:"plugins"`
}

// --- Audio-bridge plugin payloads ---

type AudioBridgeCreateRequest struct {
	Request            string `json:"request"`
	Room               string `json:"room"`
	Permanent          bool   `json:"permanent"`
	Description        string `json:"description,omitempty"`
	IsPrivate          bool   `json:"is_private"`
	SamplingRate       uint32 `json:"sampling_rate"`
	AudioLevelExt      bool   `json:"audiolevel_ext"`
	AudioLevelEvent    bool   `json:"audiolevel_event"`
	AudioActivePackets int64  `json:"audio_active_packets"`
	AudioLevelAverage  int    `json:"audio_level_average"`
	Record             bool   `json:"record,omitempty"`
}

func (r *AudioBridgeCreateRequest) PluginName() string {
	return pluginAudioBridge
}

// NewAudioBridgeCreateRequest returns a create request for an ephemeral
// audio-bridge room with the fixed defaults and a randomly suffixed room id.
func NewAudioBridgeCreateRequest(meetingId string) *AudioBridgeCreateRequest {
	suffix := uuid.NewString()
	return &AudioBridgeCreateRequest{
		Request:            janusCreate,
		Room:               "audio_" + suffix,
		Permanent:          false,
		Description:        "audio_room_" + meetingId,
		IsPrivate:          false,
		SamplingRate:       defaultSamplingRate,
		AudioLevelExt:      true,
		AudioLevelEvent:    true,
		AudioActivePackets: defaultAudioActivePackets,
		AudioLevelAverage:  defaultAudioLevelAverage,
	}
}

type AudioBridgeDestroyRequest struct {
	Request   string `json:"request"`
	Room      string `json:"room"`
	Permanent bool   `json:"permanent"`
}

func (r *AudioBridgeDestroyRequest) PluginName() string {
	return pluginAudioBridge
}

func NewAudioBridgeDestroyRequest(room string) *AudioBridgeDestroyRequest {
	return &AudioBridgeDestroyRequest{
		Request: janusDestroy,
		Room:    room,
	}
}

type AudioBridgeJoinRequest struct {
	Request string `json:"request"`
	Room    string `json:"room"`
	Id      string `json:"id,omitempty"`
	Muted   bool   `json:"muted"`
}

func (r *AudioBridgeJoinRequest) PluginName() string {
	return pluginAudioBridge
}

type AudioBridgeConfigureRequest struct {
	Request string `json:"request"`
	Muted   *bool  `json:"muted,omitempty"`
}

func (r *AudioBridgeConfigureRequest) PluginName() string {
	return pluginAudioBridge
}

// AudioBridgeEditRequest changes mutable room properties, notably the
// recording flag.
type AudioBridgeEditRequest struct {
	Request string `json:"request"`
	Room    string `json:"room"`
	Record  *bool  `json:"record,omitempty"`
}

func (r *AudioBridgeEditRequest) PluginName() string {
	return pluginAudioBridge
}

// AudioBridgeResponse is the typed plugin payload of audio-bridge responses.
type AudioBridgeResponse struct {
	AudioBridge string `json:"audiobridge"`
	Room        string `json:"room,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
	Id          string `json:"id,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	ErrorReason string `json:"error,omitempty"`

	// Filled from the envelope, not part of the plugin payload.
	Jsep *Jsep `json:"-"`
}

// --- Video-room plugin payloads ---

type VideoRoomCreateRequest struct {
	Request     string `json:"request"`
	Room        string `json:"room"`
	Permanent   bool   `json:"permanent"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"is_private"`
	Publishers  int    `json:"publishers"`
	Bitrate     uint64 `json:"bitrate"`
	BitrateCap  bool   `json:"bitrate_cap"`
	VideoCodec  string `json:"videocodec,omitempty"`
	Record      bool   `json:"record,omitempty"`
}

func (r *VideoRoomCreateRequest) PluginName() string {
	return pluginVideoRoom
}

// NewVideoRoomCreateRequest returns a create request for an ephemeral
// video room with the fixed defaults and a randomly suffixed room id.
func NewVideoRoomCreateRequest(meetingId string) *VideoRoomCreateRequest {
	suffix := uuid.NewString()
	return &VideoRoomCreateRequest{
		Request:     janusCreate,
		Room:        "video_" + suffix,
		Permanent:   false,
		Description: "video_room_" + meetingId,
		IsPrivate:   false,
		Publishers:  defaultMaxPublishers,
		Bitrate:     defaultVideoBitrate,
		BitrateCap:  true,
		VideoCodec:  defaultVideoCodecs,
	}
}

type VideoRoomDestroyRequest struct {
	Request   string `json:"request"`
	Room      string `json:"room"`
	Permanent bool   `json:"permanent"`
}

func (r *VideoRoomDestroyRequest) PluginName() string {
	return pluginVideoRoom
}

func NewVideoRoomDestroyRequest(room string) *VideoRoomDestroyRequest {
	return &VideoRoomDestroyRequest{
		Request: janusDestroy,
		Room:    room,
	}
}

// VideoRoomEditRequest changes mutable room properties, notably the
// recording flag.
type VideoRoomEditRequest struct {
	Request string `json:"request"`
	Room    string `json:"room"`
	Record  *bool  `json:"record,omitempty"`
}

func (r *VideoRoomEditRequest) PluginName() string {
	return pluginVideoRoom
}

type VideoRoomJoinRequest struct {
	Request string `json:"request"`
	PType   string `json:"ptype"`
	Room    string `json:"room"`
	// Id is the publisher id, the feed token of the published track.
	Id      string                 `json:"id,omitempty"`
	Streams []VideoRoomSubscribeTo `json:"streams,omitempty"`
}

func (r *VideoRoomJoinRequest) PluginName() string {
	return pluginVideoRoom
}

func NewVideoRoomPublisherJoinRequest(room string, feed Feed) *VideoRoomJoinRequest {
	return &VideoRoomJoinRequest{
		Request: "join",
		PType:   "publisher",
		Room:    room,
		Id:      feed.String(),
	}
}

// VideoRoomSubscribeTo selects one remote stream by its feed token and,
// optionally, a single mid of that feed.
type VideoRoomSubscribeTo struct {
	Feed       string `json:"feed"`
	Mid        string `json:"mid,omitempty"`
	CrossRefId string `json:"crossrefid,omitempty"`
}

func NewVideoRoomSubscriberJoinRequest(room string, feed Feed) *VideoRoomJoinRequest {
	return &VideoRoomJoinRequest{
		Request: "join",
		PType:   "subscriber",
		Room:    room,
		Streams: []VideoRoomSubscribeTo{
			{Feed: feed.String()},
		},
	}
}

type VideoRoomConfigureRequest struct {
	Request string  `json:"request"`
	Audio   *bool   `json:"audio,omitempty"`
	Video   *bool   `json:"video,omitempty"`
	Bitrate *uint64 `json:"bitrate,omitempty"`
}

func (r *VideoRoomConfigureRequest) PluginName() string {
	return pluginVideoRoom
}

type VideoRoomStartRequest struct {
	Request string `json:"request"`
}

func (r *VideoRoomStartRequest) PluginName() string {
	return pluginVideoRoom
}

type VideoRoomLeaveRequest struct {
	Request string `json:"request"`
}

func (r *VideoRoomLeaveRequest) PluginName() string {
	return pluginVideoRoom
}

// VideoRoomResponse is the typed plugin payload of video-room responses.
type VideoRoomResponse struct {
	VideoRoom   string `json:"videoroom"`
	Room        string `json:"room,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
	Id          string `json:"id,omitempty"`
	Configured  string `json:"configured,omitempty"`
	Started     string `json:"started,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	ErrorReason string `json:"error,omitempty"`

	// Filled from the envelope, not part of the plugin payload.
	Jsep *Jsep `json:"-"`
}

func boolPtr(b bool) *bool {
	return &b
}
