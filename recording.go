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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// recordingTokenLifetime bounds how long a recorder may use the token
	// handed out when the recording started.
	recordingTokenLifetime = 24 * time.Hour
)

// RecorderClient triggers post-processing of a finished recording on the
// external recorder service.
type RecorderClient interface {
	StartPostProcessing(ctx context.Context, req *PostProcessingRequest) error
}

type PostProcessingRequest struct {
	MeetingId          string `json:"meeting_id"`
	MeetingName        string `json:"meeting_name"`
	AudioActivePackets int64  `json:"audio_active_packets"`
	AudioLevelAverage  int    `json:"audio_level_average"`
	AuthToken          string `json:"auth_token"`
	FolderId           string `json:"folder_id"`
	RecordingName      string `json:"recording_name"`
}

// HttpRecorderClient talks to the recorder service over plain HTTP.
type HttpRecorderClient struct {
	logger Logger

	baseURL   string
	serviceId string
	client    *http.Client
}

func NewHttpRecorderClient(logger Logger, config *Config) *HttpRecorderClient {
	return &HttpRecorderClient{
		logger: logger,

		baseURL:   config.RecorderURL,
		serviceId: config.ServiceId,
		client:    &http.Client{},
	}
}

func (c *HttpRecorderClient) StartPostProcessing(ctx context.Context, req *PostProcessingRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/PostProcessor/meeting_%s?service_id=%s", c.baseURL, req.MeetingId, url.QueryEscape(c.serviceId))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) // nolint

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: recorder returned status %d", ErrVideoServerFailed, resp.StatusCode)
	}
	return nil
}

// RecordingService coordinates recording of meetings: it flips the recording
// flag on the media-server rooms, keeps the bookkeeping rows and hands the
// finished recording over to the recorder service for post-processing.
type RecordingService struct {
	logger Logger
	clock  Clock

	client     VideoServerClient
	registry   *SessionRegistry
	meetings   MeetingRepository
	recordings RecordingRepository
	recorder   RecorderClient
	dispatcher EventDispatcher

	tokenKey  []byte
	folderId  string
	locks     KeyLock
}

func NewRecordingService(logger Logger, clock Clock, client VideoServerClient, registry *SessionRegistry,
	meetings MeetingRepository, recordings RecordingRepository, recorder RecorderClient,
	dispatcher EventDispatcher, config *Config) *RecordingService {
	return &RecordingService{
		logger: logger,
		clock:  clock,

		client:     client,
		registry:   registry,
		meetings:   meetings,
		recordings: recordings,
		recorder:   recorder,
		dispatcher: dispatcher,

		tokenKey: []byte(config.RecordingTokenKey),
		folderId: config.RecordingsFolderId,
	}
}

// newRecordingToken mints the bearer token the recorder presents when it
// uploads the processed recording.
func (s *RecordingService) newRecordingToken(meetingId string, userId string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userId,
		Audience:  jwt.ClaimStrings{"recorder"},
		ID:        meetingId,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(recordingTokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.tokenKey)
}

// VerifyRecordingToken validates a token previously minted by
// newRecordingToken and returns the meeting id it was issued for.
func (s *RecordingService) VerifyRecordingToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.tokenKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ID == "" {
		return "", errors.New("token carries no meeting id")
	}
	return claims.ID, nil
}

// StartRecording enables recording on both plugin rooms of the meeting and
// creates the bookkeeping row. Returns ErrConflict if a recording is already
// running.
func (s *RecordingService) StartRecording(ctx context.Context, meetingId string, userId string) error {
	unlock := s.locks.Lock("recording/" + meetingId)
	defer unlock()

	if existing, err := s.recordings.GetRecording(ctx, meetingId); err == nil && existing.Status == RecordingStatusStarted {
		return fmt.Errorf("%w: meeting %s is already being recorded", ErrConflict, meetingId)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	meeting, err := s.registry.GetMeeting(ctx, meetingId)
	if err != nil {
		return err
	}

	if err := s.setRoomsRecording(ctx, meetingId, meeting, true); err != nil {
		return err
	}

	now := s.clock.Now()
	token, err := s.newRecordingToken(meetingId, userId, now)
	if err != nil {
		s.rollbackRecording(ctx, meetingId, meeting)
		return err
	}

	recording := &Recording{
		Id:        uuid.NewString(),
		MeetingId: meetingId,
		StarterId: userId,
		Status:    RecordingStatusStarted,
		Token:     token,
		StartedAt: now,
	}
	if err := s.recordings.SaveRecording(ctx, recording); err != nil {
		s.rollbackRecording(ctx, meetingId, meeting)
		return err
	}

	statsRecordingsTotal.Inc()
	s.notifyMeeting(ctx, meetingId, MeetingRecordingStartedEvent{MeetingId: meetingId, UserId: userId})
	return nil
}

// StopRecording disables recording on the plugin rooms, marks the row as
// stopped and asks the recorder service to post-process the captured files.
// The stopped state is committed before the recorder is contacted; a failing
// recorder never resurrects the recording.
func (s *RecordingService) StopRecording(ctx context.Context, meetingId string, userId string, recordingName string) error {
	unlock := s.locks.Lock("recording/" + meetingId)
	defer unlock()

	recording, err := s.recordings.GetRecording(ctx, meetingId)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: meeting %s is not being recorded", ErrNotFound, meetingId)
	} else if err != nil {
		return err
	}
	if recording.Status != RecordingStatusStarted {
		return fmt.Errorf("%w: meeting %s is not being recorded", ErrNotFound, meetingId)
	}

	meeting, err := s.registry.GetMeeting(ctx, meetingId)
	if err == nil {
		if err := s.setRoomsRecording(ctx, meetingId, meeting, false); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	recording.Status = RecordingStatusStopped
	if err := s.recordings.SaveRecording(ctx, recording); err != nil {
		return err
	}
	s.notifyMeeting(ctx, meetingId, MeetingRecordingStoppedEvent{MeetingId: meetingId, UserId: userId})

	req := &PostProcessingRequest{
		MeetingId:          meetingId,
		AudioActivePackets: defaultAudioActivePackets,
		AudioLevelAverage:  defaultAudioLevelAverage,
		AuthToken:          recording.Token,
		FolderId:           s.folderId,
		RecordingName:      recordingName,
	}
	if m, err := s.meetings.GetMeeting(ctx, meetingId); err == nil {
		req.MeetingName = m.Name
	}
	if req.RecordingName == "" {
		req.RecordingName = fmt.Sprintf("recording_%s", recording.StartedAt.Format("2006-01-02T150405"))
	}

	if err := s.recorder.StartPostProcessing(ctx, req); err != nil {
		// Post-processing can be retried out of band, the stop itself
		// already happened.
		s.logger.Printf("Error starting post-processing of recording %s for meeting %s: %s", recording.Id, meetingId, err)
	}
	return nil
}

func (s *RecordingService) setRoomsRecording(ctx context.Context, meetingId string, meeting *VideoServerMeeting, record bool) error {
	audioEdit := &AudioBridgeEditRequest{
		Request: "edit",
		Room:    meeting.AudioRoomId,
		Record:  boolPtr(record),
	}
	if _, err := s.client.SendAudioBridgeRequest(ctx, meeting.ConnectionId, meeting.AudioHandleId, audioEdit, nil); err != nil {
		return err
	}

	videoEdit := &VideoRoomEditRequest{
		Request: "edit",
		Room:    meeting.VideoRoomId,
		Record:  boolPtr(record),
	}
	if _, err := s.client.SendVideoRoomRequest(ctx, meeting.ConnectionId, meeting.VideoHandleId, videoEdit, nil); err != nil {
		// The audio room was flipped already, restore it so the two rooms
		// never record independently.
		s.rollbackRecording(context.WithoutCancel(ctx), meetingId, meeting)
		return err
	}
	return nil
}

func (s *RecordingService) rollbackRecording(ctx context.Context, meetingId string, meeting *VideoServerMeeting) {
	audioEdit := &AudioBridgeEditRequest{
		Request: "edit",
		Room:    meeting.AudioRoomId,
		Record:  boolPtr(false),
	}
	if _, err := s.client.SendAudioBridgeRequest(ctx, meeting.ConnectionId, meeting.AudioHandleId, audioEdit, nil); err != nil {
		s.logger.Printf("Error disabling recording on audio room %s of meeting %s: %s", meeting.AudioRoomId, meetingId, err)
	}

	videoEdit := &VideoRoomEditRequest{
		Request: "edit",
		Room:    meeting.VideoRoomId,
		Record:  boolPtr(false),
	}
	if _, err := s.client.SendVideoRoomRequest(ctx, meeting.ConnectionId, meeting.VideoHandleId, videoEdit, nil); err != nil {
		s.logger.Printf("Error disabling recording on video room %s of meeting %s: %s", meeting.VideoRoomId, meetingId, err)
	}
}

func (s *RecordingService) notifyMeeting(ctx context.Context, meetingId string, event DomainEvent) {
	sessions, err := s.registry.ListSessions(ctx, meetingId)
	if err != nil {
		s.logger.Printf("Error listing sessions of meeting %s: %s", meetingId, err)
		return
	}

	var userIds []string
	for _, session := range sessions {
		userIds = append(userIds, session.UserId)
	}
	if len(userIds) > 0 {
		s.dispatcher.Dispatch(ctx, userIds, event)
	}
}
