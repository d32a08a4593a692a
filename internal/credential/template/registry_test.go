package template

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistrySuite) TestRegisterAndGet() {
	err := s.registry.Register(models.Template{ID: "kyc-basic", Version: "1.0"})
	s.Require().NoError(err)

	got, err := s.registry.Get("kyc-basic")
	s.Require().NoError(err)
	s.Equal("1.0", got.Version)
	s.False(got.CreatedAt.IsZero())
}

func (s *RegistrySuite) TestReRegisterReplacesContent() {
	s.Require().NoError(s.registry.Register(models.Template{ID: "kyc-basic", Version: "1.0"}))
	s.Require().NoError(s.registry.Register(models.Template{ID: "kyc-basic", Version: "2.0"}))

	s.Equal(1, s.registry.Len())
	got, err := s.registry.Get("kyc-basic")
	s.Require().NoError(err)
	s.Equal("2.0", got.Version)
}

func (s *RegistrySuite) TestGetUnknownTemplate() {
	_, err := s.registry.Get("nope")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTemplateNotFound))
}

func (s *RegistrySuite) TestRegisterRejectsEmptyID() {
	err := s.registry.Register(models.Template{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RegistrySuite) TestRegisterRejectsMalformedExpression() {
	err := s.registry.Register(models.Template{
		ID: "broken",
		ClaimMappings: []models.ClaimMapping{
			{Claim: "score", Kind: models.MappingExpression, Expression: "a >"},
		},
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RegistrySuite) TestRegisterRejectsMalformedRuleCondition() {
	err := s.registry.Register(models.Template{
		ID: "broken",
		Rules: []models.IssuanceRule{
			{Name: "bad", Condition: "(foo", Action: models.ActionReject},
		},
	})
	s.Require().Error(err)
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

type ResolveSuite struct {
	suite.Suite
}

func (s *ResolveSuite) TestResolveClaimsMixedKinds() {
	t := models.Template{
		ID: "kyc-basic",
		ClaimMappings: []models.ClaimMapping{
			{Claim: "schemaVersion", Kind: models.MappingLiteral, Literal: "1.0"},
			{Claim: "verified", Kind: models.MappingExpression, Expression: "identity.verified"},
			{Claim: "adult", Kind: models.MappingExpression, Expression: "identity.age >= 18"},
		},
	}
	ctx := map[string]any{
		"identity": map[string]any{"verified": true, "age": 34},
	}

	claims, err := ResolveClaims(t, ctx)
	s.Require().NoError(err)
	s.Equal("1.0", claims["schemaVersion"])
	s.Equal(true, claims["verified"])
	s.Equal(true, claims["adult"])
}

func (s *ResolveSuite) TestResolveClaimsMissingPathIsNil() {
	t := models.Template{
		ClaimMappings: []models.ClaimMapping{
			{Claim: "middleName", Kind: models.MappingExpression, Expression: "identity.middleName"},
		},
	}
	claims, err := ResolveClaims(t, map[string]any{"identity": map[string]any{}})
	s.Require().NoError(err)
	s.Nil(claims["middleName"])
}

func (s *ResolveSuite) TestValidateClaims() {
	min, max := 0.0, 1.0
	t := models.Template{
		Schema: map[string]models.FieldSchema{
			"fullName":   {Type: "string", Required: true, Pattern: `^\S.*$`},
			"confidence": {Type: "number", Min: &min, Max: &max},
			"verified":   {Type: "boolean", Required: true},
		},
	}

	violations := ValidateClaims(t, map[string]any{
		"fullName":   "Ada Lovelace",
		"confidence": 0.93,
		"verified":   true,
	})
	s.Empty(violations)

	violations = ValidateClaims(t, map[string]any{
		"confidence": 1.4,
		"verified":   "yes",
	})
	s.Len(violations, 3)
}

func TestResolveSuite(t *testing.T) {
	suite.Run(t, new(ResolveSuite))
}
