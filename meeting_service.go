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
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pion/sdp/v3"
)

const (
	keepaliveInterval = 30 * time.Second
)

func init() {
	RegisterVideoServerStats()
}

// MeetingService drives the media server through its session/handle/plugin
// protocol and keeps the local meeting/session records consistent with the
// remote state.
//
// Operations on the same participant are serialized through a keyed mutex;
// operations on different participants or meetings never contend. Protocol
// calls are sequenced so that no request references a resource id that
// hasn't been returned yet, and registry writes happen only after the remote
// calls they mirror succeeded.
type MeetingService struct {
	logger Logger
	clock  Clock

	client       VideoServerClient
	registry     *SessionRegistry
	participants ParticipantRepository
	dispatcher   EventDispatcher

	locks KeyLock

	closer *Closer
	// connections tracks the media-server connections to keep alive, mapped
	// to their owner for diagnostics.
	connections ConcurrentMap[uint64, string]
}

func NewMeetingService(logger Logger, clock Clock, client VideoServerClient, registry *SessionRegistry,
	participants ParticipantRepository, dispatcher EventDispatcher) *MeetingService {
	return &MeetingService{
		logger: logger,
		clock:  clock,

		client:       client,
		registry:     registry,
		participants: participants,
		dispatcher:   dispatcher,

		closer: NewCloser(),
	}
}

// Start launches the keepalive loop. Stop terminates it.
func (s *MeetingService) Start() {
	go s.run()
}

func (s *MeetingService) Stop() {
	s.closer.Close()
}

func (s *MeetingService) run() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			s.sendKeepalives()
		case <-s.closer.C:
			break loop
		}
	}
}

func (s *MeetingService) sendKeepalives() {
	s.connections.Range(func(connectionId uint64, owner string) bool {
		go func() {
			if err := s.client.KeepAlive(context.Background(), connectionId); err != nil {
				s.logger.Printf("Error sending keepalive for connection %d (%s): %s", connectionId, owner, err)
			}
		}()
		return true
	})
}

// HealthCheck probes the media server.
func (s *MeetingService) HealthCheck(ctx context.Context) error {
	_, err := s.client.GetInfo(ctx)
	return err
}

// RestoreConnections re-enrolls the persisted media-server connections into
// the keepalive loop after a process restart. A connection the media server
// no longer knows is purged together with its rows, the bookkeeping must not
// outlive the remote state.
func (s *MeetingService) RestoreConnections(ctx context.Context) error {
	meetings, err := s.registry.ListMeetings(ctx)
	if err != nil {
		return err
	}

	for _, meeting := range meetings {
		if err := s.client.KeepAlive(ctx, meeting.ConnectionId); err != nil {
			s.logger.Printf("Dropping stale media mapping of meeting %s: %s", meeting.MeetingId, err)
			if err := s.registry.DeleteMeeting(ctx, meeting.MeetingId); err != nil {
				s.logger.Printf("Error deleting stale mapping of meeting %s: %s", meeting.MeetingId, err)
			}
		} else {
			s.connections.Set(meeting.ConnectionId, meetingLockKey(meeting.MeetingId))
			statsMeetingsCurrent.Inc()
		}

		sessions, err := s.registry.ListSessions(ctx, meeting.MeetingId)
		if err != nil {
			return err
		}
		for _, session := range sessions {
			if err := s.client.KeepAlive(ctx, session.ConnectionId); err != nil {
				s.logger.Printf("Dropping stale session of %s in meeting %s: %s", session.UserId, session.MeetingId, err)
				if err := s.registry.DeleteSession(ctx, session.MeetingId, session.UserId); err != nil {
					s.logger.Printf("Error deleting stale session of %s in meeting %s: %s", session.UserId, session.MeetingId, err)
				}
				if err := s.participants.DeleteParticipant(ctx, session.MeetingId, session.UserId); err != nil {
					s.logger.Printf("Error deleting stale participant %s of meeting %s: %s", session.UserId, session.MeetingId, err)
				}
				continue
			}

			s.connections.Set(session.ConnectionId, sessionLockKey(session.MeetingId, session.UserId))
			statsParticipantsCurrent.Inc()
			statsSubscribersCurrent.Add(float64(len(session.Subscriptions)))
		}
	}
	return nil
}

func meetingLockKey(meetingId string) string {
	return "meeting/" + meetingId
}

func sessionLockKey(meetingId string, userId string) string {
	return "session/" + meetingId + "/" + userId
}

// Best-effort teardown helpers. Remote failures are logged, a room that is
// already gone counts as success.

func (s *MeetingService) destroyAudioRoom(ctx context.Context, meetingId string, connectionId uint64, handleId uint64, room string) {
	if _, err := s.client.SendAudioBridgeRequest(ctx, connectionId, handleId, NewAudioBridgeDestroyRequest(room), nil); err != nil && !IsRoomGone(err) {
		s.logger.Printf("Error destroying audio room %s of meeting %s: %s", room, meetingId, err)
	}
}

func (s *MeetingService) destroyVideoRoom(ctx context.Context, meetingId string, connectionId uint64, handleId uint64, room string) {
	if _, err := s.client.SendVideoRoomRequest(ctx, connectionId, handleId, NewVideoRoomDestroyRequest(room), nil); err != nil && !IsRoomGone(err) {
		s.logger.Printf("Error destroying video room %s of meeting %s: %s", room, meetingId, err)
	}
}

func (s *MeetingService) detachHandle(ctx context.Context, connectionId uint64, handleId uint64) {
	if err := s.client.DetachHandle(ctx, connectionId, handleId); err != nil {
		s.logger.Printf("Error detaching handle %d of connection %d: %s", handleId, connectionId, err)
	}
}

func (s *MeetingService) destroyConnection(ctx context.Context, connectionId uint64) {
	s.connections.Del(connectionId)
	if err := s.client.DestroyConnection(ctx, connectionId); err != nil {
		s.logger.Printf("Error destroying connection %d: %s", connectionId, err)
	}
}

// CreateMeeting creates the audio-bridge and video rooms for the meeting and
// persists the mapping. Idempotent: if the mapping already exists, nothing
// happens. On partial failure every remote resource created so far is torn
// down again before the error is surfaced, so no orphaned room is left
// behind.
func (s *MeetingService) CreateMeeting(ctx context.Context, meetingId string) error {
	unlock := s.locks.Lock(meetingLockKey(meetingId))
	defer unlock()

	if _, err := s.registry.GetMeeting(ctx, meetingId); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	connectionId, err := s.client.CreateConnection(ctx)
	if err != nil {
		return err
	}

	// The cleanup context survives a deadline failure of the create call.
	cleanupCtx := context.WithoutCancel(ctx)

	audioHandleId, err := s.client.AttachHandle(ctx, connectionId, pluginAudioBridge, meetingId)
	if err != nil {
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}

	audioReq := NewAudioBridgeCreateRequest(meetingId)
	audioResp, err := s.client.SendAudioBridgeRequest(ctx, connectionId, audioHandleId, audioReq, nil)
	if err != nil {
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}
	audioRoomId := audioResp.Room
	if audioRoomId == "" {
		audioRoomId = audioReq.Room
	}

	videoHandleId, err := s.client.AttachHandle(ctx, connectionId, pluginVideoRoom, meetingId)
	if err != nil {
		s.destroyAudioRoom(cleanupCtx, meetingId, connectionId, audioHandleId, audioRoomId)
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}

	videoReq := NewVideoRoomCreateRequest(meetingId)
	videoResp, err := s.client.SendVideoRoomRequest(ctx, connectionId, videoHandleId, videoReq, nil)
	if err != nil {
		s.destroyAudioRoom(cleanupCtx, meetingId, connectionId, audioHandleId, audioRoomId)
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}
	videoRoomId := videoResp.Room
	if videoRoomId == "" {
		videoRoomId = videoReq.Room
	}

	meeting := &VideoServerMeeting{
		MeetingId:     meetingId,
		ConnectionId:  connectionId,
		AudioHandleId: audioHandleId,
		VideoHandleId: videoHandleId,
		AudioRoomId:   audioRoomId,
		VideoRoomId:   videoRoomId,
	}
	if err := s.registry.CreateMeeting(ctx, meeting); err != nil {
		s.destroyAudioRoom(cleanupCtx, meetingId, connectionId, audioHandleId, audioRoomId)
		s.destroyVideoRoom(cleanupCtx, meetingId, connectionId, videoHandleId, videoRoomId)
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}

	s.connections.Set(connectionId, meetingLockKey(meetingId))
	statsMeetingsCurrent.Inc()
	return nil
}

// DeleteMeeting destroys the meeting's media rooms and deletes the mapping.
// Remote teardown is best effort, the goal state (no room) counts as
// reached when the server reports the room as already gone. Idempotent.
// Must be called only after all participants have left.
func (s *MeetingService) DeleteMeeting(ctx context.Context, meetingId string) error {
	unlock := s.locks.Lock(meetingLockKey(meetingId))
	defer unlock()

	meeting, err := s.registry.GetMeeting(ctx, meetingId)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	// Destroying the two rooms is independent, do it concurrently.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.destroyAudioRoom(ctx, meetingId, meeting.ConnectionId, meeting.AudioHandleId, meeting.AudioRoomId)
	}()
	go func() {
		defer wg.Done()
		s.destroyVideoRoom(ctx, meetingId, meeting.ConnectionId, meeting.VideoHandleId, meeting.VideoRoomId)
	}()
	wg.Wait()

	s.detachHandle(ctx, meeting.ConnectionId, meeting.AudioHandleId)
	s.detachHandle(ctx, meeting.ConnectionId, meeting.VideoHandleId)
	s.destroyConnection(ctx, meeting.ConnectionId)

	if err := s.registry.DeleteMeeting(ctx, meetingId); err != nil {
		return err
	}
	statsMeetingsCurrent.Dec()
	return nil
}

// JoinMeeting creates the participant's media-server connection, joins the
// audio-bridge room and joins the video room as publisher. The session is
// persisted only after all remote calls succeeded; on failure every handle
// created so far is detached again, no handles are leaked.
func (s *MeetingService) JoinMeeting(ctx context.Context, meetingId string, userId string, queueId string, audioOn bool, videoOn bool) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	meeting, err := s.registry.GetMeeting(ctx, meetingId)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: meeting %s has no media rooms", ErrNotFound, meetingId)
	} else if err != nil {
		return err
	}

	if _, err := s.registry.GetSession(ctx, meetingId, userId); err == nil {
		return fmt.Errorf("%w: user %s already joined meeting %s", ErrConflict, userId, meetingId)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	connectionId, err := s.client.CreateConnection(ctx)
	if err != nil {
		return err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	var cleanup []func()
	fail := func(err error) error {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		s.destroyConnection(cleanupCtx, connectionId)
		return err
	}

	audioFeed := Feed{Type: StreamTypeAudio, UserId: userId, MeetingId: meetingId}
	audioHandleId, err := s.client.AttachHandle(ctx, connectionId, pluginAudioBridge, audioFeed.String())
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, func() { s.detachHandle(cleanupCtx, connectionId, audioHandleId) })

	audioJoin := &AudioBridgeJoinRequest{
		Request: "join",
		Room:    meeting.AudioRoomId,
		Id:      userId,
		Muted:   !audioOn,
	}
	if _, err := s.client.SendAudioBridgeRequest(ctx, connectionId, audioHandleId, audioJoin, nil); err != nil {
		return fail(err)
	}

	videoFeed := Feed{Type: StreamTypeVideoOut, UserId: userId, MeetingId: meetingId}
	videoHandleId, err := s.client.AttachHandle(ctx, connectionId, pluginVideoRoom, videoFeed.String())
	if err != nil {
		return fail(err)
	}
	cleanup = append(cleanup, func() { s.detachHandle(cleanupCtx, connectionId, videoHandleId) })

	if _, err := s.client.SendVideoRoomRequest(ctx, connectionId, videoHandleId, NewVideoRoomPublisherJoinRequest(meeting.VideoRoomId, videoFeed), nil); err != nil {
		return fail(err)
	}

	session := &VideoServerSession{
		MeetingId: meetingId,
		UserId:    userId,
		QueueId:   queueId,

		ConnectionId:     connectionId,
		AudioHandleId:    audioHandleId,
		VideoOutHandleId: videoHandleId,

		AudioOn: audioOn,
		VideoOn: videoOn,

		Subscriptions: make(map[string]uint64),
	}
	if err := s.registry.CreateSession(ctx, session); err != nil {
		return fail(err)
	}

	now := s.clock.Now()
	participant := &Participant{
		MeetingId: meetingId,
		UserId:    userId,
		QueueId:   queueId,
		AudioOn:   audioOn,
		VideoOn:   videoOn,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.participants.SaveParticipant(ctx, participant); err != nil {
		cleanup = append(cleanup, func() {
			if err := s.registry.DeleteSession(cleanupCtx, meetingId, userId); err != nil {
				s.logger.Printf("Error removing session of %s in meeting %s: %s", userId, meetingId, err)
			}
		})
		return fail(err)
	}

	s.connections.Set(connectionId, sessionLockKey(meetingId, userId))
	statsParticipantsCurrent.Inc()
	s.notifyOthers(ctx, meetingId, userId, MeetingParticipantJoinedEvent{MeetingId: meetingId, UserId: userId})
	return nil
}

// LeaveMeeting detaches every handle the session owns, destroys the
// connection and deletes the session. Remote failures on individual handles
// are logged and don't abort the teardown; a half-torn-down session never
// blocks the participant from being removed. Idempotent.
func (s *MeetingService) LeaveMeeting(ctx context.Context, meetingId string, userId string) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	for _, handleId := range session.Handles() {
		s.detachHandle(ctx, session.ConnectionId, handleId)
	}
	s.destroyConnection(ctx, session.ConnectionId)

	if err := s.registry.DeleteSession(ctx, meetingId, userId); err != nil {
		return err
	}
	if err := s.participants.DeleteParticipant(ctx, meetingId, userId); err != nil {
		return err
	}

	statsParticipantsCurrent.Dec()
	statsSubscribersCurrent.Sub(float64(len(session.Subscriptions)))
	s.notifyOthers(ctx, meetingId, userId, MeetingParticipantLeftEvent{MeetingId: meetingId, UserId: userId})
	return nil
}

// UpdateAudioStream mutes or unmutes the participant in the audio-bridge
// room. The persisted session is updated only after the remote call
// succeeded.
func (s *MeetingService) UpdateAudioStream(ctx context.Context, meetingId string, userId string, enabled bool) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}
	if session.AudioOn == enabled {
		return nil
	}

	configure := &AudioBridgeConfigureRequest{
		Request: "configure",
		Muted:   boolPtr(!enabled),
	}
	if _, err := s.client.SendAudioBridgeRequest(ctx, session.ConnectionId, session.AudioHandleId, configure, nil); err != nil {
		return err
	}

	session.AudioOn = enabled
	if err := s.registry.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.updateParticipantStream(ctx, meetingId, userId, StreamTypeAudio, enabled)
	s.notifyOthers(ctx, meetingId, userId, MeetingMediaStreamChangedEvent{MeetingId: meetingId, UserId: userId, Type: StreamTypeAudio, Enabled: enabled})
	return nil
}

// UpdateVideoStream toggles the camera track on the video-room publisher
// handle.
func (s *MeetingService) UpdateVideoStream(ctx context.Context, meetingId string, userId string, enabled bool) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}
	if session.VideoOn == enabled {
		return nil
	}

	configure := &VideoRoomConfigureRequest{
		Request: "configure",
		Video:   boolPtr(enabled),
	}
	if _, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, session.VideoOutHandleId, configure, nil); err != nil {
		return err
	}

	session.VideoOn = enabled
	if err := s.registry.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.updateParticipantStream(ctx, meetingId, userId, StreamTypeVideoOut, enabled)
	s.notifyOthers(ctx, meetingId, userId, MeetingMediaStreamChangedEvent{MeetingId: meetingId, UserId: userId, Type: StreamTypeVideoOut, Enabled: enabled})
	return nil
}

// UpdateScreenStream enables or disables screen sharing. The screen-share
// publisher handle is created lazily on the first enable and detached again
// on disable.
func (s *MeetingService) UpdateScreenStream(ctx context.Context, meetingId string, userId string, enabled bool) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}
	if session.ScreenOn == enabled {
		return nil
	}

	if enabled {
		meeting, err := s.registry.GetMeeting(ctx, meetingId)
		if err != nil {
			return err
		}

		screenFeed := Feed{Type: StreamTypeScreen, UserId: userId, MeetingId: meetingId}
		handleId, err := s.client.AttachHandle(ctx, session.ConnectionId, pluginVideoRoom, screenFeed.String())
		if err != nil {
			return err
		}

		if _, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, handleId, NewVideoRoomPublisherJoinRequest(meeting.VideoRoomId, screenFeed), nil); err != nil {
			s.detachHandle(context.WithoutCancel(ctx), session.ConnectionId, handleId)
			return err
		}

		session.ScreenHandleId = handleId
	} else if session.ScreenHandleId != 0 {
		if err := s.client.DetachHandle(ctx, session.ConnectionId, session.ScreenHandleId); err != nil {
			return err
		}
		session.ScreenHandleId = 0
	}

	session.ScreenOn = enabled
	if err := s.registry.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.updateParticipantStream(ctx, meetingId, userId, StreamTypeScreen, enabled)
	s.notifyOthers(ctx, meetingId, userId, MeetingMediaStreamChangedEvent{MeetingId: meetingId, UserId: userId, Type: StreamTypeScreen, Enabled: enabled})
	return nil
}

// validateOffer rejects offers that can't be parsed or don't carry an m-line
// of the negotiated kind, before anything is sent to the media server.
func validateOffer(sdpOffer string, kind string) error {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(sdpOffer)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSdp, err)
	}

	for _, media := range parsed.MediaDescriptions {
		if media.MediaName.Media == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: offer carries no %s media", ErrInvalidSdp, kind)
}

func (s *MeetingService) offerStream(ctx context.Context, meetingId string, userId string, streamType MediaStreamType, sdpOffer string) (string, error) {
	kind := "video"
	if streamType == StreamTypeAudio {
		kind = "audio"
	}
	if err := validateOffer(sdpOffer, kind); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return "", err
	}

	var answer *Jsep
	switch streamType {
	case StreamTypeAudio:
		configure := &AudioBridgeConfigureRequest{Request: "configure"}
		resp, err := s.client.SendAudioBridgeRequest(ctx, session.ConnectionId, session.AudioHandleId, configure, OfferJsep(sdpOffer))
		if err != nil {
			return "", err
		}
		answer = resp.Jsep
	case StreamTypeVideoOut:
		configure := &VideoRoomConfigureRequest{Request: "configure"}
		resp, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, session.VideoOutHandleId, configure, OfferJsep(sdpOffer))
		if err != nil {
			return "", err
		}
		answer = resp.Jsep
	case StreamTypeScreen:
		if session.ScreenHandleId == 0 {
			return "", fmt.Errorf("%w: screen sharing is not enabled for %s in meeting %s", ErrNotFound, userId, meetingId)
		}
		configure := &VideoRoomConfigureRequest{Request: "configure"}
		resp, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, session.ScreenHandleId, configure, OfferJsep(sdpOffer))
		if err != nil {
			return "", err
		}
		answer = resp.Jsep
	default:
		return "", fmt.Errorf("%w: stream type %s can't be offered", ErrNotFound, streamType)
	}

	if answer == nil {
		return "", fmt.Errorf("%w: missing answer jsep", ErrVideoServerFailed)
	}
	return answer.Sdp, nil
}

// OfferRtcAudioStream negotiates the participant's audio PeerConnection and
// returns the media server's SDP answer. Each media discipline negotiates
// its own independent PeerConnection on its own handle.
func (s *MeetingService) OfferRtcAudioStream(ctx context.Context, meetingId string, userId string, sdpOffer string) (string, error) {
	return s.offerStream(ctx, meetingId, userId, StreamTypeAudio, sdpOffer)
}

func (s *MeetingService) OfferRtcVideoStream(ctx context.Context, meetingId string, userId string, sdpOffer string) (string, error) {
	return s.offerStream(ctx, meetingId, userId, StreamTypeVideoOut, sdpOffer)
}

func (s *MeetingService) OfferRtcScreenStream(ctx context.Context, meetingId string, userId string, sdpOffer string) (string, error) {
	return s.offerStream(ctx, meetingId, userId, StreamTypeScreen, sdpOffer)
}

// AnswerRtcMediaStream completes the oldest negotiation the media server
// initiated for this participant, sending the answer as the jsep of a start
// request on the corresponding subscriber handle.
func (s *MeetingService) AnswerRtcMediaStream(ctx context.Context, meetingId string, userId string, sdpAnswer string) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}

	// Offers whose subscription was removed in the meantime are skipped.
	for len(session.PendingOffers) > 0 {
		token := session.PendingOffers[0]
		handleId, found := session.Subscriptions[token]
		if !found {
			session.PendingOffers = session.PendingOffers[1:]
			continue
		}

		if _, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, handleId, &VideoRoomStartRequest{Request: "start"}, AnswerJsep(sdpAnswer)); err != nil {
			return err
		}
		session.PendingOffers = session.PendingOffers[1:]
		return s.registry.UpdateSession(ctx, session)
	}

	return fmt.Errorf("%w: no negotiation is waiting for an answer from %s in meeting %s", ErrNotFound, userId, meetingId)
}

// UpdateSubscriptions attaches a subscriber handle for every added feed and
// detaches the handle of every removed feed. Additions and removals are
// independent and processed concurrently; the resulting handle set matches
// the requested target set regardless of ordering. Failed additions are
// reported but don't abort the sibling operations.
func (s *MeetingService) UpdateSubscriptions(ctx context.Context, meetingId string, userId string, subscribe []Feed, unsubscribe []Feed) error {
	unlock := s.locks.Lock(sessionLockKey(meetingId, userId))
	defer unlock()

	session, err := s.registry.GetSession(ctx, meetingId, userId)
	if err != nil {
		return err
	}
	meeting, err := s.registry.GetMeeting(ctx, meetingId)
	if err != nil {
		return err
	}
	if session.Subscriptions == nil {
		session.Subscriptions = make(map[string]uint64)
	}

	// Both requests are resolved against the subscription map up front, the
	// workers below mutate the same map.
	removals := make(map[string]uint64, len(unsubscribe))
	for _, feed := range unsubscribe {
		token := feed.String()
		if handleId, found := session.Subscriptions[token]; found {
			removals[token] = handleId
		}
	}
	var additions []Feed
	for _, feed := range subscribe {
		token := feed.String()
		if _, found := session.Subscriptions[token]; !found {
			additions = append(additions, feed)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for token, handleId := range removals {
		wg.Add(1)
		go func(token string, handleId uint64) {
			defer wg.Done()
			s.detachHandle(ctx, session.ConnectionId, handleId)

			mu.Lock()
			defer mu.Unlock()
			delete(session.Subscriptions, token)
			session.PendingOffers = slices.DeleteFunc(session.PendingOffers, func(pending string) bool {
				return pending == token
			})
			statsSubscribersCurrent.Dec()
		}(token, handleId)
	}

	for _, feed := range additions {
		token := feed.String()

		wg.Add(1)
		go func(feed Feed, token string) {
			defer wg.Done()
			handleId, err := s.client.AttachHandle(ctx, session.ConnectionId, pluginVideoRoom, token)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			resp, err := s.client.SendVideoRoomRequest(ctx, session.ConnectionId, handleId, NewVideoRoomSubscriberJoinRequest(meeting.VideoRoomId, feed), nil)
			if err != nil {
				s.detachHandle(context.WithoutCancel(ctx), session.ConnectionId, handleId)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			mu.Lock()
			session.Subscriptions[token] = handleId
			if resp.Jsep != nil {
				session.PendingOffers = append(session.PendingOffers, token)
			}
			statsSubscribersCurrent.Inc()
			mu.Unlock()

			if resp.Jsep != nil {
				s.dispatcher.Dispatch(ctx, []string{userId}, MeetingSdpOfferedEvent{
					MeetingId: meetingId,
					UserId:    userId,
					Feed:      token,
					Sdp:       resp.Jsep.Sdp,
				})
			}
		}(feed, token)
	}

	wg.Wait()
	if err := s.registry.UpdateSession(ctx, session); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *MeetingService) updateParticipantStream(ctx context.Context, meetingId string, userId string, streamType MediaStreamType, enabled bool) {
	participant, err := s.participants.GetParticipant(ctx, meetingId, userId)
	if err != nil {
		s.logger.Printf("Error loading participant %s of meeting %s: %s", userId, meetingId, err)
		return
	}

	switch streamType {
	case StreamTypeAudio:
		participant.AudioOn = enabled
	case StreamTypeVideoOut:
		participant.VideoOn = enabled
	case StreamTypeScreen:
		participant.ScreenOn = enabled
	}
	participant.UpdatedAt = s.clock.Now()
	if err := s.participants.SaveParticipant(ctx, participant); err != nil {
		s.logger.Printf("Error updating participant %s of meeting %s: %s", userId, meetingId, err)
	}
}

// notifyOthers delivers the event to every participant of the meeting except
// the acting user, fire and forget.
func (s *MeetingService) notifyOthers(ctx context.Context, meetingId string, actorId string, event DomainEvent) {
	participants, err := s.participants.ListParticipants(ctx, meetingId)
	if err != nil {
		s.logger.Printf("Error listing participants of meeting %s: %s", meetingId, err)
		return
	}

	var userIds []string
	for _, participant := range participants {
		if participant.UserId != actorId {
			userIds = append(userIds, participant.UserId)
		}
	}
	if len(userIds) > 0 {
		s.dispatcher.Dispatch(ctx, userIds, event)
	}
}
