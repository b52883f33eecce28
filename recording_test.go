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
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorderClient struct {
	mu       sync.Mutex
	requests []*PostProcessingRequest
	err      error
}

func (c *fakeRecorderClient) StartPostProcessing(ctx context.Context, req *PostProcessingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.requests = append(c.requests, req)
	return nil
}

func newTestRecordingService(t *testing.T) (*RecordingService, *fakeVideoServerClient, *MemoryStorage, *fakeRecorderClient, *captureDispatcher) {
	client := newFakeVideoServerClient()
	storage := NewMemoryStorage()
	recorder := &fakeRecorderClient{}
	dispatcher := &captureDispatcher{}
	registry := NewSessionRegistry(storage, storage)
	config := &Config{
		RecordingTokenKey:  "test-token-key",
		RecordingsFolderId: "folder-1",
	}
	service := NewRecordingService(DefaultLogger(), SystemClock(), client, registry,
		storage, storage, recorder, dispatcher, config)

	// A meeting with media rooms has to exist before recording starts.
	meetings := NewMeetingService(DefaultLogger(), SystemClock(), client, registry, storage, dispatcher)
	require.NoError(t, meetings.CreateMeeting(context.Background(), "m1"))
	require.NoError(t, storage.SaveMeeting(context.Background(), &Meeting{
		Id:   "m1",
		Name: "weekly sync",
	}))

	return service, client, storage, recorder, dispatcher
}

func TestRecordingStartAndStop(t *testing.T) {
	t.Parallel()
	service, _, storage, recorder, dispatcher := newTestRecordingService(t)
	ctx := context.Background()

	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))

	recording, err := storage.GetRecording(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, RecordingStatusStarted, recording.Status)
	assert.Equal(t, "alice", recording.StarterId)
	assert.NotEmpty(t, recording.Token)

	meetingId, err := service.VerifyRecordingToken(recording.Token)
	require.NoError(t, err)
	assert.Equal(t, "m1", meetingId)

	require.NoError(t, service.StopRecording(ctx, "m1", "alice", "rec-1"))

	recording, err = storage.GetRecording(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, RecordingStatusStopped, recording.Status)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.requests, 1)
	req := recorder.requests[0]
	assert.Equal(t, "m1", req.MeetingId)
	assert.Equal(t, "weekly sync", req.MeetingName)
	assert.Equal(t, "rec-1", req.RecordingName)
	assert.Equal(t, "folder-1", req.FolderId)
	assert.Equal(t, int64(10), req.AudioActivePackets)
	assert.Equal(t, 55, req.AudioLevelAverage)
	assert.Equal(t, recording.Token, req.AuthToken)

	assert.Len(t, dispatcher.eventsOfType("meeting_recording_started"), 0,
		"no sessions exist, nothing to notify")
}

func TestRecordingStartConflict(t *testing.T) {
	t.Parallel()
	service, _, _, _, _ := newTestRecordingService(t)
	ctx := context.Background()

	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))
	err := service.StartRecording(ctx, "m1", "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRecordingRestartAfterStop(t *testing.T) {
	t.Parallel()
	service, _, _, _, _ := newTestRecordingService(t)
	ctx := context.Background()

	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))
	require.NoError(t, service.StopRecording(ctx, "m1", "alice", ""))
	require.NoError(t, service.StartRecording(ctx, "m1", "bob"))
}

func TestRecordingStopWithoutStart(t *testing.T) {
	t.Parallel()
	service, _, _, _, _ := newTestRecordingService(t)

	err := service.StopRecording(context.Background(), "m1", "alice", "rec-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordingStartRollsBackOnVideoFailure(t *testing.T) {
	t.Parallel()
	service, client, storage, _, _ := newTestRecordingService(t)
	ctx := context.Background()

	client.failNext("videoroom:edit", &JanusError{Code: JANUS_ERROR_PLUGIN_MESSAGE, Reason: "boom"})
	err := service.StartRecording(ctx, "m1", "alice")
	require.Error(t, err)

	_, err = storage.GetRecording(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The failure left no recording behind, a retry succeeds.
	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))
}

func TestRecordingStopSurvivesRecorderFailure(t *testing.T) {
	t.Parallel()
	service, _, storage, recorder, _ := newTestRecordingService(t)
	ctx := context.Background()

	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))
	recorder.err = errors.New("recorder is down")

	// The stop is committed even though post-processing could not start.
	require.NoError(t, service.StopRecording(ctx, "m1", "alice", "rec-1"))
	recording, err := storage.GetRecording(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, RecordingStatusStopped, recording.Status)
}

func TestRecordingTokenRejectsWrongKey(t *testing.T) {
	t.Parallel()
	service, _, storage, _, _ := newTestRecordingService(t)
	ctx := context.Background()

	require.NoError(t, service.StartRecording(ctx, "m1", "alice"))
	recording, err := storage.GetRecording(ctx, "m1")
	require.NoError(t, err)

	other := &RecordingService{tokenKey: []byte("different-key")}
	_, err = other.VerifyRecordingToken(recording.Token)
	assert.Error(t, err)

	_, err = service.VerifyRecordingToken("not-a-token")
	assert.Error(t, err)
}

func TestHttpRecorderClient(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotServiceId string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotServiceId = r.URL.Query().Get("service_id")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewHttpRecorderClient(DefaultLogger(), &Config{
		RecorderURL: server.URL,
		ServiceId:   "service-1",
	})

	err := client.StartPostProcessing(context.Background(), &PostProcessingRequest{
		MeetingId: "m1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/PostProcessor/meeting_m1", gotPath)
	assert.Equal(t, "service-1", gotServiceId)
}

func TestHttpRecorderClientErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewHttpRecorderClient(DefaultLogger(), &Config{
		RecorderURL: server.URL,
		ServiceId:   "service-1",
	})

	err := client.StartPostProcessing(context.Background(), &PostProcessingRequest{MeetingId: "m1"})
	assert.ErrorIs(t, err, ErrVideoServerFailed)
}
