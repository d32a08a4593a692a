package builder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestia/internal/credential/models"
	"attestia/internal/provider"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type BuilderSuite struct {
	suite.Suite
	builder *Builder
}

func (s *BuilderSuite) SetupTest() {
	s.builder = New().WithClock(func() time.Time { return fixedNow })
}

func (s *BuilderSuite) baseInput() Input {
	return Input{
		Template: models.Template{
			ID:    "kyc-basic",
			Types: []string{"KYCCredential"},
		},
		SubjectDID: "did:example:subject",
		IssuerDID:  "did:example:issuer",
		Claims:     map[string]any{"verified": true},
	}
}

func (s *BuilderSuite) TestBuildBasicShape() {
	vc, err := s.builder.Build(s.baseInput())
	s.Require().NoError(err)

	s.True(strings.HasPrefix(vc.ID, "urn:uuid:"))
	s.Equal([]string{"https://www.w3.org/2018/credentials/v1"}, vc.Context)
	s.Equal([]string{"VerifiableCredential", "KYCCredential"}, vc.Type)
	s.Equal("did:example:issuer", vc.Issuer.ID)
	s.Equal("did:example:subject", vc.Subject["id"])
	s.Equal(true, vc.Subject["verified"])
	s.Equal(fixedNow, vc.IssuanceDate)
	s.Nil(vc.ExpirationDate)
	s.Empty(vc.Proof)
}

func (s *BuilderSuite) TestUniqueIDs() {
	a, err := s.builder.Build(s.baseInput())
	s.Require().NoError(err)
	b, err := s.builder.Build(s.baseInput())
	s.Require().NoError(err)
	s.NotEqual(a.ID, b.ID)
}

func (s *BuilderSuite) TestFixedExpiration() {
	in := s.baseInput()
	in.Template.Expiration = models.ExpirationPolicy{Kind: models.ExpireFixed, Duration: "P1Y"}

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Require().NotNil(vc.ExpirationDate)
	s.Equal(fixedNow.AddDate(1, 0, 0), *vc.ExpirationDate)
}

func (s *BuilderSuite) TestCompoundDuration() {
	in := s.baseInput()
	in.Template.Expiration = models.ExpirationPolicy{Kind: models.ExpireFixed, Duration: "P1Y6MT12H"}

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Equal(fixedNow.AddDate(1, 6, 0).Add(12*time.Hour), *vc.ExpirationDate)
}

func (s *BuilderSuite) TestInvalidDuration() {
	in := s.baseInput()
	in.Template.Expiration = models.ExpirationPolicy{Kind: models.ExpireFixed, Duration: "1Y"}

	_, err := s.builder.Build(in)
	s.Require().Error(err)
}

func (s *BuilderSuite) TestConditionalExpiration() {
	in := s.baseInput()
	in.Template.Expiration = models.ExpirationPolicy{
		Kind:      models.ExpireConditional,
		Duration:  "P30D",
		Condition: "calculated.confidence < 0.8",
	}
	in.Context = map[string]any{"calculated": map[string]any{"confidence": 0.6}}

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Require().NotNil(vc.ExpirationDate)
	s.Equal(fixedNow.AddDate(0, 0, 30), *vc.ExpirationDate)

	in.Context = map[string]any{"calculated": map[string]any{"confidence": 0.95}}
	vc, err = s.builder.Build(in)
	s.Require().NoError(err)
	s.Nil(vc.ExpirationDate)
}

func (s *BuilderSuite) TestSlidingReverify() {
	in := s.baseInput()
	policy := models.ExpirationPolicy{Kind: models.ExpireSliding, Duration: "P7D"}
	in.Template.Expiration = policy

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Equal(fixedNow.AddDate(0, 0, 7), *vc.ExpirationDate)

	later := fixedNow.Add(48 * time.Hour)
	s.builder.WithClock(func() time.Time { return later })
	s.Require().NoError(s.builder.Reverify(vc, policy))
	s.Equal(later.AddDate(0, 0, 7), *vc.ExpirationDate)
}

func (s *BuilderSuite) TestStatusAndRefreshBlocks() {
	in := s.baseInput()
	in.Template.Revocation = models.RevocationPolicy{Revocable: true, StatusURL: "https://attestia.example/status"}
	in.Template.RefreshURL = "https://attestia.example/refresh"

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Require().NotNil(vc.Status)
	s.Contains(vc.Status.ID, vc.ID)
	s.Require().NotNil(vc.RefreshService)
	s.Equal("https://attestia.example/refresh", vc.RefreshService.ID)
}

func (s *BuilderSuite) TestEvidenceFromSuccessfulSources() {
	in := s.baseInput()
	in.Template.EvidenceNeeded = true
	in.Sources = []*provider.Response{
		{Success: false},
		{
			Success: true,
			Metadata: provider.ResponseMeta{
				ProviderID:  "idv",
				Timestamp:   fixedNow,
				Reliability: 0.97,
			},
		},
	}

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.Require().Len(vc.Evidence, 1)
	s.Equal("idv", vc.Evidence[0].SourceID)
	s.InDelta(0.97, vc.Evidence[0].Reliability, 1e-9)
}

func (s *BuilderSuite) TestPrivacyOmitsClaims() {
	in := s.baseInput()
	in.Claims = map[string]any{"verified": true, "ssnLast4": "1234"}
	in.Privacy = models.PrivacyOptions{OmitClaims: []string{"ssnLast4"}}

	vc, err := s.builder.Build(in)
	s.Require().NoError(err)
	s.NotContains(vc.Subject, "ssnLast4")
	s.Contains(vc.Subject, "verified")
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in      string
		want    isoDuration
		wantErr bool
	}{
		{in: "P1Y", want: isoDuration{years: 1}},
		{in: "P30D", want: isoDuration{days: 30}},
		{in: "PT12H", want: isoDuration{hours: 12}},
		{in: "P1Y6M", want: isoDuration{years: 1, months: 6}},
		{in: "P2DT3H4M5S", want: isoDuration{days: 2, hours: 3, minutes: 4, seconds: 5}},
		{in: "PT90M", want: isoDuration{minutes: 90}},
		{in: "P", wantErr: true},
		{in: "1Y", wantErr: true},
		{in: "P1X", wantErr: true},
		{in: "P1", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseISODuration(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseISODuration(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseISODuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseISODuration(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
