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
	"fmt"
	"net/http"
)

// HttpClientPool bounds the number of concurrent requests against a single
// host. Get blocks until a client is available or the context is done.
type HttpClientPool struct {
	pool chan *http.Client
}

func NewHttpClientPool(size int) (*HttpClientPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("can't create empty pool")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: size,
	}

	p := &HttpClientPool{
		pool: make(chan *http.Client, size),
	}
	for size > 0 {
		p.pool <- &http.Client{
			Transport: transport,
		}
		size--
	}
	return p, nil
}

func (p *HttpClientPool) Get(ctx context.Context) (*http.Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case client := <-p.pool:
		return client, nil
	}
}

func (p *HttpClientPool) Put(c *http.Client) {
	p.pool <- c
}
