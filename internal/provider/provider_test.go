package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestRegisterAndGet() {
	s.registry.Register(Provider{ID: "experian", Reliability: 0.95})

	p, ok := s.registry.Get("experian")
	s.True(ok)
	s.Equal("experian", p.ID)
	s.InDelta(0.95, p.Reliability, 1e-9)
}

func (s *RegistrySuite) TestGetMissing() {
	_, ok := s.registry.Get("nope")
	s.False(ok)
}

func (s *RegistrySuite) TestRegisterIsIdempotentByID() {
	s.registry.Register(Provider{ID: "plaid", Reliability: 0.8})
	s.registry.Register(Provider{ID: "plaid", Reliability: 0.9})

	s.Equal(1, s.registry.Len())
	p, _ := s.registry.Get("plaid")
	s.InDelta(0.9, p.Reliability, 1e-9, "second registration wins")
}

func (s *RegistrySuite) TestReplacePreservesRegistrationOrder() {
	s.registry.Register(Provider{ID: "a"})
	s.registry.Register(Provider{ID: "b"})
	s.registry.Register(Provider{ID: "a", Name: "replaced"})

	all := s.registry.All()
	s.Require().Len(all, 2)
	s.Equal("a", all[0].ID)
	s.Equal("replaced", all[0].Name)
	s.Equal("b", all[1].ID)
}

type SelectorSuite struct {
	suite.Suite
	registry *Registry
	selector *Selector
}

func (s *SelectorSuite) SetupTest() {
	s.registry = NewRegistry()
	s.selector = NewSelector(s.registry)
}

func TestSelectorSuite(t *testing.T) {
	suite.Run(t, new(SelectorSuite))
}

func (s *SelectorSuite) financialProvider(id string, reliability, cost float64, latency time.Duration) Provider {
	return Provider{
		ID:          id,
		Reliability: reliability,
		CostPerCall: cost,
		AvgLatency:  latency,
		SupportedDataTypes: []DataCapability{
			{Category: "financial", SubType: "credit-report", VerificationLevel: "enhanced", FreshnessHours: 24},
		},
	}
}

func (s *SelectorSuite) TestFindSuitableMatchesCategorySubTypeAndCompound() {
	s.registry.Register(s.financialProvider("p1", 0.9, 1, 100*time.Millisecond))

	s.Len(s.selector.FindSuitable("financial"), 1)
	s.Len(s.selector.FindSuitable("credit-report"), 1)
	s.Len(s.selector.FindSuitable("financial-credit-report"), 1)
	s.Empty(s.selector.FindSuitable("identity"))
}

func (s *SelectorSuite) TestScoreFormula() {
	p := s.financialProvider("p1", 0.8, 2, 50*time.Millisecond)
	// 0.8*0.5 + (1/2)*0.3 + (1/50)*0.2
	s.InDelta(0.8*0.5+0.5*0.3+0.02*0.2, Score(p), 1e-9)
}

func (s *SelectorSuite) TestSelectBestPrefersHigherScore() {
	cheap := s.financialProvider("cheap", 0.7, 0.5, 200*time.Millisecond)
	reliable := s.financialProvider("reliable", 0.99, 5, 200*time.Millisecond)
	s.registry.Register(cheap)
	s.registry.Register(reliable)

	best, ok := s.selector.SelectBest(s.selector.FindSuitable("financial"))
	s.Require().True(ok)
	// cheap: 0.35 + 0.6 + 0.001 = 0.951 > reliable: 0.495 + 0.06 + 0.001
	s.Equal("cheap", best.ID)
}

func (s *SelectorSuite) TestSelectBestTieBreaksByRegistrationOrder() {
	first := s.financialProvider("first", 0.9, 1, 100*time.Millisecond)
	second := s.financialProvider("second", 0.9, 1, 100*time.Millisecond)
	s.registry.Register(first)
	s.registry.Register(second)

	best, ok := s.selector.SelectBest(s.selector.FindSuitable("financial"))
	s.Require().True(ok)
	s.Equal("first", best.ID)
}

func (s *SelectorSuite) TestSelectBestEmpty() {
	_, ok := s.selector.SelectBest(nil)
	s.False(ok)
}

func (s *SelectorSuite) TestRankOrdersByDescendingScore() {
	low := s.financialProvider("low", 0.5, 10, time.Second)
	high := s.financialProvider("high", 0.99, 0.5, 20*time.Millisecond)
	mid := s.financialProvider("mid", 0.8, 2, 100*time.Millisecond)
	s.registry.Register(low)
	s.registry.Register(high)
	s.registry.Register(mid)

	ranked := s.selector.Rank("financial")
	s.Require().Len(ranked, 3)
	s.Equal("high", ranked[0].ID)
	s.Equal("mid", ranked[1].ID)
	s.Equal("low", ranked[2].ID)
}
