/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DebugTestSuite struct {
	suite.Suite
	out *bytes.Buffer
}

func (s *DebugTestSuite) SetupTest() {
	s.out = &bytes.Buffer{}
	SetLogOutput(s.out)
}

func (s *DebugTestSuite) TearDownTest() {
	SetLogOutput(nil)
	SetLogLevel(LevelWarn)
}

func (s *DebugTestSuite) TestLogColor() {
	SetLogLevel(LevelTrace)

	internalLogger.tracef("this is tracef %s", "hello world")
	internalLogger.debugf("this is debugf %s", "hello world")
	internalLogger.infof("this is infof %s", "hello world")
	internalLogger.warnf("this is warnf %s", "hello world")
	internalLogger.errorf("this is errorf %s", "hello world")

	lines := strings.Split(strings.TrimSpace(s.out.String()), "\n")
	s.Require().Len(lines, 5)
	for i, name := range levelName {
		s.Contains(lines[i], colors[i]+name)
		s.Contains(lines[i], "debug_test.go:")
		s.Contains(lines[i], "hello world")
	}
}

func (s *DebugTestSuite) TestLevelFilters() {
	SetLogLevel(LevelWarn)
	internalLogger.infof("hidden")
	internalLogger.debugf("hidden")
	s.Empty(s.out.String())

	internalLogger.warnf("shown")
	s.Contains(s.out.String(), "shown")

	s.out.Reset()
	SetLogLevel(LevelNoPrint)
	internalLogger.errorf("hidden")
	s.Empty(s.out.String())

	SetLogLevel(42)
	s.Equal(int32(LevelNoPrint), level.Load(), "out of range levels are ignored")
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}
