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
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	tierServer      = "server"
	tierConnection  = "connection"
	tierHandle      = "handle"
	tierAudioBridge = "audiobridge"
	tierVideoRoom   = "videoroom"
)

// VideoServerClient is the protocol contract towards the media server. All
// calls take a context and are safe for concurrent use; the per-request
// deadline is applied internally so a stalled media server can't hang a
// meeting operation indefinitely.
type VideoServerClient interface {
	GetInfo(ctx context.Context) (*ServerInfo, error)

	CreateConnection(ctx context.Context) (uint64, error)
	DestroyConnection(ctx context.Context, connectionId uint64) error
	KeepAlive(ctx context.Context, connectionId uint64) error

	AttachHandle(ctx context.Context, connectionId uint64, plugin string, opaqueId string) (uint64, error)
	DetachHandle(ctx context.Context, connectionId uint64, handleId uint64) error
	HangUp(ctx context.Context, connectionId uint64, handleId uint64) error
	Trickle(ctx context.Context, connectionId uint64, handleId uint64, candidate *TrickleCandidate) error

	SendAudioBridgeRequest(ctx context.Context, connectionId uint64, handleId uint64, body PluginBody, jsep *Jsep) (*AudioBridgeResponse, error)
	SendVideoRoomRequest(ctx context.Context, connectionId uint64, handleId uint64, body PluginBody, jsep *Jsep) (*VideoRoomResponse, error)
}

// JanusClient talks the Janus REST protocol over HTTP/JSON. Requests carry a
// fresh transaction id which is matched against the response; a "message"
// request answered with an ack is resolved by long-polling the connection for
// the transaction-correlated event.
type JanusClient struct {
	logger   Logger
	settings *Settings

	baseURL   string
	apiSecret string

	pool *HttpClientPool
}

func NewJanusClient(logger Logger, settings *Settings, config *Config) (*JanusClient, error) {
	if config.VideoServerURL == "" {
		return nil, fmt.Errorf("videoserver url is not configured")
	}

	pool, err := NewHttpClientPool(config.MaxConcurrentRequests)
	if err != nil {
		return nil, err
	}

	return &JanusClient{
		logger:   logger,
		settings: settings,

		baseURL:   strings.TrimSuffix(config.VideoServerURL, "/"),
		apiSecret: config.ApiSecret,

		pool: pool,
	}, nil
}

func (c *JanusClient) roundTrip(ctx context.Context, httpReq *http.Request) (*JanusResponse, error) {
	client, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	defer c.pool.Put(client)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrVideoServerFailed, httpResp.StatusCode)
	}

	var resp JanusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: could not decode %s: %s", ErrVideoServerFailed, string(body), err)
	}
	return &resp, nil
}

func (c *JanusClient) post(ctx context.Context, url string, req *JanusRequest) (*JanusResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.roundTrip(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	if resp.Transaction != req.Transaction {
		return nil, fmt.Errorf("%w: transaction mismatch, sent %s, received %s", ErrVideoServerFailed, req.Transaction, resp.Transaction)
	}
	if resp.Error != nil {
		return nil, &JanusError{Code: resp.Error.Code, Reason: resp.Error.Reason}
	}
	return resp, nil
}

// pollEvent long-polls the connection until the event correlated with the
// given transaction arrives or the context expires. Unrelated events are
// dropped, browser-bound events are delivered elsewhere.
func (c *JanusClient) pollEvent(ctx context.Context, connectionId uint64, handleId uint64, transaction string) (*JanusResponse, error) {
	url := fmt.Sprintf("%s/%d?maxev=1", c.baseURL, connectionId)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.roundTrip(ctx, httpReq)
		if err != nil {
			return nil, err
		}

		if resp.Janus != janusEvent || resp.Transaction != transaction || resp.Sender != handleId {
			continue
		}
		if resp.Error != nil {
			return nil, &JanusError{Code: resp.Error.Code, Reason: resp.Error.Reason}
		}
		return resp, nil
	}
}

func (c *JanusClient) send(ctx context.Context, tier string, url string, req *JanusRequest) (*JanusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout())
	defer cancel()

	statsVideoServerRequestsTotal.WithLabelValues(tier).Inc()
	resp, err := c.post(ctx, url, req)
	if err != nil {
		statsVideoServerErrorsTotal.WithLabelValues(tier).Inc()
	}
	return resp, err
}

func (c *JanusClient) connectionURL(connectionId uint64) string {
	return fmt.Sprintf("%s/%d", c.baseURL, connectionId)
}

func (c *JanusClient) handleURL(connectionId uint64, handleId uint64) string {
	return fmt.Sprintf("%s/%d/%d", c.baseURL, connectionId, handleId)
}

// GetInfo probes the media server. Liveness is "connection succeeded and a
// well-formed info response was returned".
func (c *JanusClient) GetInfo(ctx context.Context) (*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, err
	}

	client, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	defer c.pool.Put(client)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVideoServerFailed, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrVideoServerFailed, httpResp.StatusCode)
	}

	var info ServerInfo
	if err := json.NewDecoder(httpResp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: could not decode info response: %s", ErrVideoServerFailed, err)
	}
	if info.Janus != janusServerInfo {
		return nil, fmt.Errorf("%w: unexpected info response %q", ErrVideoServerFailed, info.Janus)
	}
	return &info, nil
}

func (c *JanusClient) CreateConnection(ctx context.Context) (uint64, error) {
	req := newJanusRequest(janusCreate)
	req.ApiSecret = c.apiSecret
	resp, err := c.send(ctx, tierServer, c.baseURL, req)
	if err != nil {
		return 0, err
	}
	if resp.Janus != janusSuccess || resp.Data == nil {
		return 0, fmt.Errorf("%w: unexpected response to create request", ErrVideoServerFailed)
	}
	return resp.Data.Id, nil
}

func (c *JanusClient) DestroyConnection(ctx context.Context, connectionId uint64) error {
	req := newJanusRequest(janusDestroy)
	req.ApiSecret = c.apiSecret
	_, err := c.send(ctx, tierConnection, c.connectionURL(connectionId), req)
	return err
}

func (c *JanusClient) KeepAlive(ctx context.Context, connectionId uint64) error {
	req := newJanusRequest(janusKeepAlive)
	req.ApiSecret = c.apiSecret
	_, err := c.send(ctx, tierConnection, c.connectionURL(connectionId), req)
	return err
}

func (c *JanusClient) AttachHandle(ctx context.Context, connectionId uint64, plugin string, opaqueId string) (uint64, error) {
	req := newJanusRequest(janusAttach)
	req.ApiSecret = c.apiSecret
	req.Plugin = plugin
	req.OpaqueId = opaqueId
	resp, err := c.send(ctx, tierConnection, c.connectionURL(connectionId), req)
	if err != nil {
		return 0, err
	}
	if resp.Janus != janusSuccess || resp.Data == nil {
		return 0, fmt.Errorf("%w: unexpected response to attach request", ErrVideoServerFailed)
	}
	return resp.Data.Id, nil
}

func (c *JanusClient) DetachHandle(ctx context.Context, connectionId uint64, handleId uint64) error {
	req := newJanusRequest(janusDetach)
	req.ApiSecret = c.apiSecret
	_, err := c.send(ctx, tierHandle, c.handleURL(connectionId, handleId), req)
	return err
}

func (c *JanusClient) HangUp(ctx context.Context, connectionId uint64, handleId uint64) error {
	req := newJanusRequest(janusHangUp)
	req.ApiSecret = c.apiSecret
	_, err := c.send(ctx, tierHandle, c.handleURL(connectionId, handleId), req)
	return err
}

func (c *JanusClient) Trickle(ctx context.Context, connectionId uint64, handleId uint64, candidate *TrickleCandidate) error {
	req := newJanusRequest(janusTrickle)
	req.ApiSecret = c.apiSecret
	req.Candidate = candidate
	_, err := c.send(ctx, tierHandle, c.handleURL(connectionId, handleId), req)
	return err
}

func (c *JanusClient) sendMessage(ctx context.Context, tier string, connectionId uint64, handleId uint64, body PluginBody, jsep *Jsep) (*JanusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout())
	defer cancel()

	req := newJanusRequest(janusMessage)
	req.ApiSecret = c.apiSecret
	req.Body = body
	req.Jsep = jsep

	statsVideoServerRequestsTotal.WithLabelValues(tier).Inc()
	resp, err := c.post(ctx, c.handleURL(connectionId, handleId), req)
	if err == nil && resp.Janus == janusAck {
		resp, err = c.pollEvent(ctx, connectionId, handleId, req.Transaction)
	}
	if err != nil {
		statsVideoServerErrorsTotal.WithLabelValues(tier).Inc()
		return nil, err
	}
	return resp, nil
}

func (c *JanusClient) SendAudioBridgeRequest(ctx context.Context, connectionId uint64, handleId uint64, body PluginBody, jsep *Jsep) (*AudioBridgeResponse, error) {
	resp, err := c.sendMessage(ctx, tierAudioBridge, connectionId, handleId, body, jsep)
	if err != nil {
		return nil, err
	}
	if resp.PluginData == nil || resp.PluginData.Plugin != pluginAudioBridge {
		return nil, fmt.Errorf("%w: missing audiobridge plugin data", ErrVideoServerFailed)
	}

	var result AudioBridgeResponse
	if err := json.Unmarshal(resp.PluginData.Data, &result); err != nil {
		return nil, fmt.Errorf("%w: could not decode audiobridge data: %s", ErrVideoServerFailed, err)
	}
	if result.ErrorCode != 0 {
		return nil, &JanusError{Code: result.ErrorCode, Reason: result.ErrorReason}
	}

	result.Jsep = resp.Jsep
	return &result, nil
}

func (c *JanusClient) SendVideoRoomRequest(ctx context.Context, connectionId uint64, handleId uint64, body PluginBody, jsep *Jsep) (*VideoRoomResponse, error) {
	resp, err := c.sendMessage(ctx, tierVideoRoom, connectionId, handleId, body, jsep)
	if err != nil {
		return nil, err
	}
	if resp.PluginData == nil || resp.PluginData.Plugin != pluginVideoRoom {
		return nil, fmt.Errorf("%w: missing videoroom plugin data", ErrVideoServerFailed)
	}

	var result VideoRoomResponse
	if err := json.Unmarshal(resp.PluginData.Data, &result); err != nil {
		return nil, fmt.Errorf("%w: could not decode videoroom data: %s", ErrVideoServerFailed, err)
	}
	if result.ErrorCode != 0 {
		return nil, &JanusError{Code: result.ErrorCode, Reason: result.ErrorReason}
	}

	result.Jsep = resp.Jsep
	return &result, nil
}
