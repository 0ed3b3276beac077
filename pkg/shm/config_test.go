package shm

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().NotNil(VerifyConfig(nil))

	config := DefaultConfig()
	s.Require().Nil(VerifyConfig(config))

	config.Capacity = 1
	s.Require().ErrorIs(VerifyConfig(config), ErrInvalidCapacity)
	config.Capacity = maxCapacity + 1
	s.Require().ErrorIs(VerifyConfig(config), ErrInvalidCapacity)
	config.Capacity = 2
	s.Require().Nil(VerifyConfig(config))

	config.AttachTimeout = -1
	s.Require().NotNil(VerifyConfig(config))
	config.AttachTimeout = 0

	config.SpinLimit = -1
	s.Require().NotNil(VerifyConfig(config))
	config.SpinLimit = 0

	config.WaitBackoff = nil
	s.Require().NotNil(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestResolveConfigFillsDefaults() {
	c, err := resolveConfig(nil)
	s.Require().NoError(err)
	s.Equal(uint64(DefaultCapacity), c.Capacity)
	s.Equal("/dev/shm", c.Dir)
	s.NotNil(c.Meter)
	s.NotNil(c.Tracer)

	partial := &Config{Capacity: 8, WaitBackoff: defaultWaitBackoff}
	c, err = resolveConfig(partial)
	s.Require().NoError(err)
	s.Equal("/dev/shm", c.Dir)
	s.Equal(uint64(8), c.Capacity)
	s.NotNil(c.Meter)
	s.Empty(partial.Dir, "caller config must not be modified")

	_, err = resolveConfig(&Config{Capacity: 8})
	s.Error(err)
}

func (s *ConfigTestSuite) TestDefaultWaitBackoffNeverStops() {
	b := defaultWaitBackoff()
	for i := 0; i < 100; i++ {
		d := b.NextBackOff()
		s.Require().Positive(d)
		s.Require().LessOrEqual(d.Milliseconds(), int64(1))
	}
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
