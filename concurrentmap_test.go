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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentMap(t *testing.T) {
	t.Parallel()

	var m ConcurrentMap[string, int]
	assert.Equal(t, 0, m.Len())

	m.Set("a", 1)
	m.Set("b", 2)
	assert.Equal(t, 2, m.Len())

	value, found := m.Get("a")
	assert.True(t, found)
	assert.Equal(t, 1, value)

	_, found = m.Get("missing")
	assert.False(t, found)

	m.Set("a", 3)
	value, _ = m.Get("a")
	assert.Equal(t, 3, value)

	m.Del("a")
	_, found = m.Get("a")
	assert.False(t, found)
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentMapSnapshot(t *testing.T) {
	t.Parallel()

	var m ConcurrentMap[string, int]
	m.Set("a", 1)
	m.Set("b", 2)

	snapshot := m.Snapshot()
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, snapshot)

	// Mutating the snapshot doesn't touch the map.
	snapshot["c"] = 3
	assert.Equal(t, 2, m.Len())
}

func TestConcurrentMapRange(t *testing.T) {
	t.Parallel()

	var m ConcurrentMap[uint64, string]
	m.Set(1, "a")
	m.Set(2, "b")
	m.Set(3, "c")

	seen := make(map[uint64]string)
	m.Range(func(key uint64, value string) bool {
		seen[key] = value
		return true
	})
	assert.Len(t, seen, 3)

	count := 0
	m.Range(func(key uint64, value string) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestConcurrentMapConcurrency(t *testing.T) {
	t.Parallel()

	var m ConcurrentMap[int, int]
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i, i)
			m.Get(i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, m.Len())
}
