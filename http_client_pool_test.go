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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpClientPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHttpClientPool(0)
	assert.Error(t, err)
	_, err = NewHttpClientPool(-1)
	assert.Error(t, err)
}

func TestHttpClientPoolGetPut(t *testing.T) {
	t.Parallel()

	pool, err := NewHttpClientPool(1)
	require.NoError(t, err)
	ctx := context.Background()

	client, err := pool.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, client)

	// The pool is exhausted now, a bounded Get times out.
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = pool.Get(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Put(client)
	client2, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, client, client2)
}
