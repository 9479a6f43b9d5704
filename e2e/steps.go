package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background steps
	ctx.Step(`^the consent network is running$`, tc.networkIsRunning)
	ctx.Step(`^I act as "([^"]*)"$`, tc.actAs)

	// Policy steps
	ctx.Step(`^I register a policy with purposes "([^"]*)", operations "([^"]*)" and duration (\d+) days$`, tc.registerPolicy)
	ctx.Step(`^I register a policy with purposes "([^"]*)", operations "([^"]*)", duration (\d+) days and assurance "([^"]*)"$`, tc.registerPolicyWithAssurance)

	// Anchor steps
	ctx.Step(`^I derive the holder key for asset "([^"]*)" from seed "([^"]*)"$`, tc.deriveHolderKey)
	ctx.Step(`^I create an anchor for asset "([^"]*)" with the registered policy$`, tc.createAnchor)
	ctx.Step(`^I verify access to "([^"]*)" for purpose "([^"]*)" and operation "([^"]*)"$`, tc.verifyAccess)
	ctx.Step(`^I precheck access to "([^"]*)" for purpose "([^"]*)" and operation "([^"]*)"$`, tc.precheckAccess)
	ctx.Step(`^I precheck access to "([^"]*)" for purpose "([^"]*)" and operation "([^"]*)" needing assurance "([^"]*)"$`, tc.precheckAccessWithAssurance)
	ctx.Step(`^I revoke the anchor for asset "([^"]*)" with the holder key$`, tc.revokeWithHolderKey)
	ctx.Step(`^I revoke the anchor for asset "([^"]*)" with a key derived from seed "([^"]*)"$`, tc.revokeWithForeignKey)
	ctx.Step(`^I read the anchor for asset "([^"]*)"$`, tc.readAnchor)

	// DID steps
	ctx.Step(`^I register DID "([^"]*)" with verkey "([^"]*)" and endpoint "([^"]*)"$`, tc.registerDID)
	ctx.Step(`^I resolve DID "([^"]*)"$`, tc.resolveDID)
	ctx.Step(`^I revoke DID "([^"]*)"$`, tc.revokeDID)
	ctx.Step(`^I request the latest active DID created by "([^"]*)"$`, tc.latestActiveDID)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, tc.responseFieldShouldBeBool)
	ctx.Step(`^the response field "([^"]*)" should have (\d+) entries$`, tc.responseFieldShouldHaveEntries)
}

func (tc *TestContext) networkIsRunning(context.Context) error {
	if err := tc.GET("/health/ready"); err != nil {
		return err
	}
	return tc.expectStatus(http.StatusOK)
}

func (tc *TestContext) actAs(_ context.Context, caller string) error {
	tc.Caller = caller
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (tc *TestContext) registerPolicy(ctx context.Context, purposes, operations string, days int) error {
	return tc.registerPolicyWithAssurance(ctx, purposes, operations, days, "")
}

func (tc *TestContext) registerPolicyWithAssurance(_ context.Context, purposes, operations string, days int, assurance string) error {
	doc := map[string]any{
		"purposes":     splitList(purposes),
		"operations":   splitList(operations),
		"durationDays": days,
	}
	if assurance != "" {
		doc["assuranceLevel"] = assurance
	}
	if err := tc.POST("/v1/policies", map[string]any{"policy": doc}); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK, http.StatusCreated); err != nil {
		return err
	}
	var res struct {
		PolicyHash string `json:"policyHash"`
	}
	if err := tc.decodeLast(&res); err != nil {
		return err
	}
	tc.PolicyHash = res.PolicyHash
	return nil
}

type keyPair struct {
	PrivateKeyPEM string `json:"privateKeyPem"`
	PublicKeyPEM  string `json:"publicKeyPem"`
}

func (tc *TestContext) derive(seed, assetID string) (keyPair, error) {
	var kp keyPair
	if err := tc.POST("/v1/keys/derive", map[string]string{"seed": seed, "assetId": assetID}); err != nil {
		return kp, err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return kp, err
	}
	return kp, tc.decodeLast(&kp)
}

func (tc *TestContext) deriveHolderKey(_ context.Context, assetID, seed string) error {
	kp, err := tc.derive(seed, assetID)
	if err != nil {
		return err
	}
	tc.PublicKeys[assetID] = kp.PublicKeyPEM
	tc.PrivateKeys[assetID] = kp.PrivateKeyPEM
	return nil
}

func (tc *TestContext) createAnchor(_ context.Context, assetID string) error {
	pub, ok := tc.PublicKeys[assetID]
	if !ok {
		return fmt.Errorf("no holder key derived for %s", assetID)
	}
	if tc.PolicyHash == "" {
		return fmt.Errorf("no policy registered")
	}
	err := tc.POST("/v1/anchors", map[string]string{
		"assetId":      assetID,
		"publicKeyPem": pub,
		"policyHash":   tc.PolicyHash,
	})
	if err != nil {
		return err
	}
	if tc.LastResponse.StatusCode == http.StatusCreated {
		created, err := tc.GetResponseField("anchor.createdTimestamp")
		if err != nil {
			return err
		}
		tc.CreatedAt[assetID] = fmt.Sprint(created)
	}
	return nil
}

func (tc *TestContext) verifyAccess(_ context.Context, assetID, purpose, operation string) error {
	return tc.POST("/v1/access/verify", map[string]any{
		"assetId":       assetID,
		"accessRequest": map[string]string{"purpose": purpose, "operation": operation},
	})
}

func (tc *TestContext) precheckAccess(ctx context.Context, assetID, purpose, operation string) error {
	return tc.precheckAccessWithAssurance(ctx, assetID, purpose, operation, "")
}

func (tc *TestContext) precheckAccessWithAssurance(_ context.Context, assetID, purpose, operation, level string) error {
	body := map[string]string{"assetId": assetID, "purpose": purpose, "operation": operation}
	if level != "" {
		body["minAssuranceLevel"] = level
	}
	return tc.POST("/v1/access/precheck", body)
}

func (tc *TestContext) revoke(assetID, privateKeyPEM string) error {
	created, ok := tc.CreatedAt[assetID]
	if !ok {
		return fmt.Errorf("anchor %s was not created in this scenario", assetID)
	}
	if err := tc.POST("/v1/keys/sign-revocation", map[string]string{
		"assetId":       assetID,
		"timestamp":     created,
		"privateKeyPem": privateKeyPEM,
	}); err != nil {
		return err
	}
	if err := tc.expectStatus(http.StatusOK); err != nil {
		return err
	}
	var signed struct {
		Signature string `json:"signature"`
	}
	if err := tc.decodeLast(&signed); err != nil {
		return err
	}

	return tc.POST("/v1/anchors/revoke", map[string]string{
		"assetId":      assetID,
		"publicKeyPem": tc.PublicKeys[assetID],
		"signature":    signed.Signature,
	})
}

func (tc *TestContext) revokeWithHolderKey(_ context.Context, assetID string) error {
	return tc.revoke(assetID, tc.PrivateKeys[assetID])
}

func (tc *TestContext) revokeWithForeignKey(_ context.Context, assetID, seed string) error {
	kp, err := tc.derive(seed, assetID)
	if err != nil {
		return err
	}
	return tc.revoke(assetID, kp.PrivateKeyPEM)
}

func (tc *TestContext) readAnchor(_ context.Context, assetID string) error {
	return tc.GET("/v1/anchors/" + assetID)
}

func (tc *TestContext) registerDID(_ context.Context, did, verkey, endpoint string) error {
	body := map[string]string{"didId": did, "publicKeyBase58": verkey}
	if endpoint != "" {
		body["serviceEndpoint"] = endpoint
	}
	return tc.POST("/v1/dids", body)
}

func (tc *TestContext) resolveDID(_ context.Context, did string) error {
	return tc.GET("/v1/resolve/" + did)
}

func (tc *TestContext) revokeDID(_ context.Context, did string) error {
	return tc.POST("/v1/dids/"+did+"/revoke", map[string]string{})
}

func (tc *TestContext) latestActiveDID(_ context.Context, creator string) error {
	return tc.GET("/v1/dids/latest/" + creator)
}

func (tc *TestContext) responseStatusShouldBe(_ context.Context, status int) error {
	return tc.expectStatus(status)
}

func (tc *TestContext) responseShouldContain(_ context.Context, text string) error {
	if !strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("response does not contain %q: %s", text, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(_ context.Context, field, expected string) error {
	v, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("field %s: expected %q, got %q", field, expected, got)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldBeBool(_ context.Context, field, expected string) error {
	want, err := strconv.ParseBool(expected)
	if err != nil {
		return err
	}
	v, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := v.(bool); !ok || got != want {
		return fmt.Errorf("field %s: expected %v, got %v", field, want, v)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldHaveEntries(_ context.Context, field string, n int) error {
	v, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("field %s is not a list: %v", field, v)
	}
	if len(list) != n {
		return fmt.Errorf("field %s: expected %d entries, got %d", field, n, len(list))
	}
	return nil
}
