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

	"github.com/prometheus/client_golang/prometheus"
)

var (
	statsVideoServerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "requests_total",
		Help:      "The total number of media-server requests",
	}, []string{"tier"})
	statsVideoServerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "request_errors_total",
		Help:      "The total number of failed media-server requests",
	}, []string{"tier"})
	statsMeetingsCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "meetings",
		Help:      "The current number of meetings with media rooms",
	})
	statsParticipantsCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "participants",
		Help:      "The current number of joined participants",
	})
	statsSubscribersCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "subscribers",
		Help:      "The current number of subscriber handles",
	})
	statsRecordingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collaboration",
		Subsystem: "videoserver",
		Name:      "recordings_total",
		Help:      "The total number of started recordings",
	})

	videoServerStats = []prometheus.Collector{
		statsVideoServerRequestsTotal,
		statsVideoServerErrorsTotal,
		statsMeetingsCurrent,
		statsParticipantsCurrent,
		statsSubscribersCurrent,
		statsRecordingsTotal,
	}

	registerStats sync.Once
)

func RegisterVideoServerStats() {
	registerStats.Do(func() {
		for _, c := range videoServerStats {
			prometheus.MustRegister(c)
		}
	})
}
