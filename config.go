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
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/dlintw/goconf"
)

const (
	defaultRequestTimeout = 10 * time.Second

	defaultMaxConcurrentRequests = 8
)

var (
	searchVarsRegexp = regexp.MustCompile(`\$\([A-Za-z][A-Za-z0-9_]*\)`)
)

func replaceEnvVars(s string) string {
	return searchVarsRegexp.ReplaceAllStringFunc(s, func(name string) string {
		name = name[2 : len(name)-1]
		value, found := os.LookupEnv(name)
		if !found {
			return name
		}

		return value
	})
}

// GetStringOptionWithEnv will get the string option and resolve any
// environment variable references in the form "$(VAR)".
func GetStringOptionWithEnv(config *goconf.ConfigFile, section string, option string) (string, error) {
	value, err := config.GetString(section, option)
	if err != nil {
		return "", err
	}

	value = replaceEnvVars(value)
	return value, nil
}

// Config is the static process configuration, read once at startup.
type Config struct {
	// VideoServerURL is the base url of the media-server REST endpoint,
	// e.g. "http://127.0.0.1:8088/janus".
	VideoServerURL string
	ApiSecret      string

	MaxConcurrentRequests int

	RecorderURL        string
	ServiceId          string
	RecordingTokenKey  string
	RecordingsFolderId string

	EventsURL string

	DatabaseDSN string

	ListenAddress string
}

func LoadConfig(config *goconf.ConfigFile) (*Config, error) {
	url, err := GetStringOptionWithEnv(config, "videoserver", "url")
	if err != nil {
		return nil, fmt.Errorf("videoserver url is not configured")
	}

	apiSecret, _ := GetStringOptionWithEnv(config, "videoserver", "apisecret")
	maxConcurrent, _ := config.GetInt("videoserver", "maxconcurrent")
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRequests
	}

	recorderURL, _ := GetStringOptionWithEnv(config, "recorder", "url")
	serviceId, _ := GetStringOptionWithEnv(config, "recorder", "serviceid")
	tokenKey, _ := GetStringOptionWithEnv(config, "recorder", "tokenkey")
	folderId, _ := GetStringOptionWithEnv(config, "recorder", "folderid")

	eventsURL, _ := GetStringOptionWithEnv(config, "events", "url")
	dsn, _ := GetStringOptionWithEnv(config, "database", "dsn")

	listen, _ := config.GetString("http", "listen")
	if listen == "" {
		listen = "127.0.0.1:8091"
	}

	return &Config{
		VideoServerURL: url,
		ApiSecret:      apiSecret,

		MaxConcurrentRequests: maxConcurrent,

		RecorderURL:        recorderURL,
		ServiceId:          serviceId,
		RecordingTokenKey:  tokenKey,
		RecordingsFolderId: folderId,

		EventsURL: eventsURL,

		DatabaseDSN: dsn,

		ListenAddress: listen,
	}, nil
}

// Settings holds the tunables that may be changed at runtime through a
// config reload without restarting the process.
type Settings struct {
	logger Logger

	timeout atomic.Int64
}

func NewSettings(logger Logger, config *goconf.ConfigFile) *Settings {
	s := &Settings{
		logger: logger,
	}
	s.timeout.Store(int64(defaultRequestTimeout))
	if config != nil {
		s.Reload(config)
	}
	return s
}

// Timeout is the per-request deadline towards the media server.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

func (s *Settings) Reload(config *goconf.ConfigFile) {
	timeoutSeconds, _ := config.GetInt("videoserver", "timeout")
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(defaultRequestTimeout / time.Second)
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout != s.Timeout() {
		s.logger.Printf("Using videoserver request timeout of %s", timeout)
		s.timeout.Store(int64(timeout))
	}
}
