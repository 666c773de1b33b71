package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/suite"
)

type redLockSuite struct {
	suite.Suite
	nodes []*miniredis.Miniredis
	lock  *RedLock
}

func TestRedLockSuite(t *testing.T) {
	suite.Run(t, new(redLockSuite))
}

func (s *redLockSuite) SetupTest() {
	s.nodes = nil
	var clients []*redis.Client
	var addrs []string
	for i := 0; i < 3; i++ {
		node := miniredis.RunT(s.T())
		s.nodes = append(s.nodes, node)
		addrs = append(addrs, node.Addr())
		clients = append(clients, redis.NewClient(&redis.Options{Addr: node.Addr()}))
	}
	s.lock = NewRedLockWithClients(clients, addrs, 1, 0)
}

func (s *redLockSuite) TearDownTest() {
	s.Require().NoError(s.lock.Close())
}

func (s *redLockSuite) TestAcquireAndRelease() {
	ok, err := s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)

	for _, node := range s.nodes {
		s.Require().True(node.Exists("gate"))
	}

	ok, err = s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().False(ok)

	s.Require().NoError(s.lock.ReleaseLock("gate"))
	for _, node := range s.nodes {
		s.Require().False(node.Exists("gate"))
	}

	ok, err = s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)
}

func (s *redLockSuite) TestMinorityHeldElsewhereStillAcquires() {
	s.Require().NoError(s.nodes[0].Set("gate", "someone-else"))

	ok, err := s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.lock.ReleaseLock("gate"))
	// A foreign token must survive our unlock.
	got, err := s.nodes[0].Get("gate")
	s.Require().NoError(err)
	s.Require().Equal("someone-else", got)
}

func (s *redLockSuite) TestMajorityHeldElsewhereFails() {
	s.Require().NoError(s.nodes[0].Set("gate", "x"))
	s.Require().NoError(s.nodes[1].Set("gate", "x"))

	ok, err := s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().False(ok)
	s.Require().False(s.nodes[2].Exists("gate"))
}

func (s *redLockSuite) TestRefresh() {
	_, err := s.lock.RefreshLock("gate", time.Second)
	s.Require().Error(err)

	ok, err := s.lock.AcquireLock("gate", time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.lock.RefreshLock("gate", 5*time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Require().Equal(5*time.Second, s.nodes[0].TTL("gate"))
}
