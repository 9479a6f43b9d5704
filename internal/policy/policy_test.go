package policy

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "consentis/pkg/domain-errors"
)

type CanonicalizerSuite struct {
	suite.Suite
	c *Canonicalizer
}

func TestCanonicalizerSuite(t *testing.T) {
	suite.Run(t, new(CanonicalizerSuite))
}

func (s *CanonicalizerSuite) SetupTest() {
	reg, err := DefaultRegistry()
	s.Require().NoError(err)
	s.c = NewCanonicalizer(reg)
}

func (s *CanonicalizerSuite) doc(raw string) Document {
	d, err := ParseDocument([]byte(raw))
	s.Require().NoError(err)
	return d
}

func (s *CanonicalizerSuite) canonicalize(version, raw string) *Result {
	res, err := s.c.Canonicalize(version, s.doc(raw))
	s.Require().NoError(err)
	return res
}

func (s *CanonicalizerSuite) TestHashIgnoresOrderCaseAndDuplicates() {
	a := s.canonicalize("", `{"purposes":["Research"," analytics","research"],"operations":["read","Aggregate"],"durationSecs":86400,"assuranceLevel":"AL2"}`)
	b := s.canonicalize("3", `{"assuranceLevel":"AL2","durationSecs":86400,"operations":"aggregate, READ","purposes":["ANALYTICS","research"]}`)

	s.Equal(a.PolicyHash, b.PolicyHash)
	s.Equal(a.TemplateHash, b.TemplateHash)
	s.Equal(a.ConstraintsSet, b.ConstraintsSet)
	s.Equal([]string{"analytics", "research"}, a.Document.Purposes())
	s.Equal([]string{"aggregate", "read"}, a.Document.Operations())
}

func (s *CanonicalizerSuite) TestResubmissionIsIdempotent() {
	raw := `{"purposes":["research"],"operations":["read"],"durationSecs":3600}`
	first := s.canonicalize("", raw)
	second := s.canonicalize("", raw)
	s.Equal(first, second)
}

func (s *CanonicalizerSuite) TestCanonicalBytes() {
	res := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationSecs":86400}`)
	expected := `{"durationSecs":86400,"operations":["read"],"purposes":["research"],"templateHash":"` + res.TemplateHash + `"}`
	s.Equal(expected, string(res.PolicyJSON))
	s.Equal("v3", res.TemplateVersion)
	s.Require().NotNil(res.DurationSecs)
	s.EqualValues(86400, *res.DurationSecs)
	s.Nil(res.AssuranceLevel)
}

func (s *CanonicalizerSuite) TestUndeclaredKeysAreDropped() {
	plain := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationSecs":60,"legalFlags":{"freelyGiven":true}}`)
	padded := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationSecs":60,"legalFlags":{"freelyGiven":true,"nonce":42},"nonce":"grind"}`)

	s.Equal(plain.PolicyHash, padded.PolicyHash)
	s.NotContains(string(padded.PolicyJSON), "nonce")
}

func (s *CanonicalizerSuite) TestSuppliedTemplateHashIsReplaced() {
	res := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationSecs":60,"templateHash":"`+zeros()+`"}`)
	s.Equal(s.c.Registry().Latest().Hash, res.Document["templateHash"])
}

func (s *CanonicalizerSuite) TestDurationDays() {
	res := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationDays":2}`)
	s.Require().NotNil(res.DurationSecs)
	s.EqualValues(172800, *res.DurationSecs)
	s.NotContains(res.Document, "durationDays")

	explicit := s.canonicalize("", `{"purposes":["research"],"operations":["read"],"durationSecs":10,"durationDays":2}`)
	s.EqualValues(10, *explicit.DurationSecs)
}

func (s *CanonicalizerSuite) TestOlderTemplateProjectsFewerFields() {
	v1 := s.canonicalize("v1", `{"purposes":["research"],"operations":["read"],"durationSecs":60,"assuranceLevel":"AL3"}`)
	v3 := s.canonicalize("v3", `{"purposes":["research"],"operations":["read"],"durationSecs":60,"assuranceLevel":"AL3"}`)

	s.Equal("v1", v1.TemplateVersion)
	s.Nil(v1.AssuranceLevel)
	s.NotContains(v1.Document, "assuranceLevel")
	s.NotEqual(v1.TemplateHash, v3.TemplateHash)
	s.NotEqual(v1.PolicyHash, v3.PolicyHash)
}

func (s *CanonicalizerSuite) TestValidationFailureListsViolations() {
	_, err := s.c.Canonicalize("", s.doc(`{"purposes":["research"],"operations":["read"],"durationSecs":-1,"assuranceLevel":"AL9"}`))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePolicyValidationFailed))

	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Equal("v3", verr.Version)
	s.GreaterOrEqual(len(verr.Violations), 2)
	joined := verr.Error()
	s.Contains(joined, "/durationSecs")
	s.Contains(joined, "/assuranceLevel")
}

func (s *CanonicalizerSuite) TestMissingRequiredFields() {
	_, err := s.c.Canonicalize("", s.doc(`{"purposes":["research"]}`))
	var verr *ValidationError
	s.Require().True(errors.As(err, &verr))
	s.NotEmpty(verr.Violations)
}

func (s *CanonicalizerSuite) TestUnknownTemplate() {
	_, err := s.c.Canonicalize("9", s.doc(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeTemplateNotFound))

	_, err = s.c.Canonicalize("latest", s.doc(`{}`))
	s.True(dErrors.HasCode(err, dErrors.CodeTemplateNotFound))
}

func (s *CanonicalizerSuite) TestConstraintsSet() {
	res := s.canonicalize("", `{
		"purposes":["Research"],
		"operations":["read","aggregate"],
		"durationSecs":86400,
		"assuranceLevel":"AL2",
		"dataCategories":["Health"],
		"legalFlags":{"freelyGiven":true,"lawfulBasis":"consent"}
	}`)

	atoms := res.ConstraintsSet
	s.True(slices.IsSorted(atoms))
	s.Equal(len(atoms), len(slices.Compact(slices.Clone(atoms))))

	s.Contains(atoms, Atom("purpose", "research"))
	s.Contains(atoms, Atom("operation", "read"))
	s.Contains(atoms, Atom("operation", "aggregate"))
	s.Contains(atoms, Atom("durationSecs", "86400"))
	s.Contains(atoms, Atom("assuranceLevel", "al2"))
	s.Contains(atoms, Atom("dataCategories", "health"))
	s.Contains(atoms, Atom("legalFlags.freelyGiven", "true"))
	s.Contains(atoms, Atom("legalFlags.lawfulBasis", "consent"))
	s.NotContains(atoms, Atom("templateHash", res.TemplateHash))
	s.Len(atoms, 8)

	s.True(MatchAtoms(atoms, []string{Atom("purpose", "research"), Atom("operation", "read")}))
	s.False(MatchAtoms(atoms, []string{Atom("purpose", "marketing")}))
}

func TestAtom(t *testing.T) {
	assert.Len(t, Atom("purpose", "research"), 64)
	assert.NotEqual(t, Atom("purpose", "research"), Atom("purposer", "esearch"))
}

func TestRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"v1", "v2", "v3"}, reg.Versions())
	latest, err := reg.Get("")
	require.NoError(t, err)
	byNumber, err := reg.Get("3")
	require.NoError(t, err)
	byName, err := reg.Get("v3")
	require.NoError(t, err)
	assert.Same(t, latest, byNumber)
	assert.Same(t, latest, byName)
	assert.Regexp(t, `^[0-9a-f]{64}$`, latest.Hash)
}

func TestValidateForDeployment(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		max     int64
		wantErr string
	}{
		{"valid", `{"purposes":["a"],"operations":["b"],"durationSecs":60}`, 0, ""},
		{"no purposes", `{"purposes":[],"operations":["b"],"durationSecs":60}`, 0, "at least one purpose"},
		{"no operations", `{"purposes":["a"],"durationSecs":60}`, 0, "at least one operation"},
		{"missing duration", `{"purposes":["a"],"operations":["b"]}`, 0, "durationSecs is missing or invalid"},
		{"zero duration", `{"purposes":["a"],"operations":["b"],"durationSecs":0}`, 0, "durationSecs is missing or invalid"},
		{"over ceiling", `{"purposes":["a"],"operations":["b"],"durationSecs":61}`, 60, "exceeds max of 60"},
		{"over default ceiling", `{"purposes":["a"],"operations":["b"],"durationSecs":94608001}`, 0, "exceeds max of 94608000"},
		{"not freely given", `{"purposes":["a"],"operations":["b"],"durationSecs":60,"legalFlags":{"freelyGiven":false}}`, 0, "freelyGiven must not be false"},
		{"freely given absent", `{"purposes":["a"],"operations":["b"],"durationSecs":60,"legalFlags":{}}`, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.doc))
			require.NoError(t, err)
			err = ValidateForDeployment(doc, tt.max)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyValidationFailed))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Error(t, ValidateForDeployment(nil, 0))
}

func TestGenerateContractDescriptor(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"purposes":["research","analytics"],"operations":["read"],"durationSecs":60,"assuranceLevel":"AL2"}`))
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := DescriptorInput{
		Policy:     doc,
		PolicyHash: "abc",
		DatasetIDs: []string{" ds-1", "ds-2", "ds-1", ""},
	}

	res, err := GenerateContractDescriptor(in, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"ds-1", "ds-2"}, res.Descriptor.DatasetIDs)
	assert.Equal(t, []string{"research", "analytics"}, res.Descriptor.Purposes)
	assert.Equal(t, "2025-03-01T12:00:00.000Z", res.Descriptor.CreatedAt)
	assert.Equal(t, DefaultDescriptorVersion, res.Descriptor.DescriptorVersion)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(res.DescriptorJSON, &decoded))
	assert.NotContains(t, decoded, "templateHash")
	assert.NotContains(t, decoded, "@context")
	assert.Contains(t, decoded, "issuerOrgId")
	assert.Nil(t, decoded["issuerOrgId"])
	assert.Equal(t, "AL2", decoded["assuranceLevel"])

	again, err := GenerateContractDescriptor(in, now)
	require.NoError(t, err)
	assert.Equal(t, res.DescriptorHash, again.DescriptorHash)

	later, err := GenerateContractDescriptor(in, now.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, res.DescriptorHash, later.DescriptorHash)

	in.DatasetIDs = []string{" "}
	_, err = GenerateContractDescriptor(in, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseDocument(t *testing.T) {
	_, err := ParseDocument([]byte(`["a"]`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	_, err = ParseDocument([]byte(`{`))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	for _, trailing := range []string{`{"a":1} {"b":2}`, `{"a":1}]`, `{"a":1} x`} {
		_, err = ParseDocument([]byte(trailing))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), trailing)
	}

	doc, err := ParseDocument([]byte("{\"version\":3}\n"))
	require.NoError(t, err)
	v, err := VersionOf(doc)
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	doc, err = ParseDocument([]byte(`{"durationSecs":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), doc["durationSecs"])
}

func zeros() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
