// Copyright 2025 MeetMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package meshsdk

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerMu  sync.RWMutex
	globalLog = zerolog.New(os.Stderr).With().Timestamp().Str("sdk", "meshsdk").Logger().Level(zerolog.InfoLevel)
)

// SetLogger overrides the package logger. The SDK logs negotiation and
// reconnection activity at debug level and protocol anomalies at warn level.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	globalLog = l
	loggerMu.Unlock()
}

func logger() *zerolog.Logger {
	loggerMu.RLock()
	l := globalLog
	loggerMu.RUnlock()
	return &l
}
