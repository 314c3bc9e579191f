package tools

import (
	"context"
	"strings"

	"github.com/room4-2/callbridge/voicelive"
)

// policyEntry is one IT policy document the agent can read back to callers.
type policyEntry struct {
	Topic    string
	Summary  string
	Keywords []string
}

var policies = []policyEntry{
	{
		Topic: "password",
		Summary: "Passwords must be at least 14 characters, rotated every 180 days, " +
			"and may not repeat any of the last 5 passwords. Resets through the IT " +
			"helpdesk require identity verification first.",
		Keywords: []string{"password", "reset", "rotation", "complexity"},
	},
	{
		Topic: "mfa",
		Summary: "Multi-factor authentication is mandatory for all accounts. The " +
			"authenticator app is the default second factor; hardware keys are " +
			"available on request from IT.",
		Keywords: []string{"mfa", "2fa", "authenticator", "multi-factor", "token"},
	},
	{
		Topic: "account-lockout",
		Summary: "Accounts lock after 5 failed sign-in attempts and unlock " +
			"automatically after 30 minutes, or immediately after a verified " +
			"helpdesk password reset.",
		Keywords: []string{"lockout", "locked", "failed", "sign-in", "login"},
	},
	{
		Topic: "remote-access",
		Summary: "VPN access requires a managed device and an active MFA " +
			"enrollment. Personal devices are limited to webmail.",
		Keywords: []string{"vpn", "remote", "work from home", "personal device"},
	},
}

func searchPolicies(query string) []policyEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var hits []policyEntry
	for _, p := range policies {
		if strings.Contains(q, p.Topic) || strings.Contains(p.Topic, q) {
			hits = append(hits, p)
			continue
		}
		for _, kw := range p.Keywords {
			if strings.Contains(q, kw) {
				hits = append(hits, p)
				break
			}
		}
	}
	return hits
}

// RegisterPolicySearch wires the IT policy lookup tool into a registry.
func RegisterPolicySearch(r *Registry) {
	r.Register(voicelive.ToolDef{
		Type:        "function",
		Name:        "search_policy",
		Description: "Search the company IT policy documents by topic or keyword. Use this to answer caller questions about password rules, MFA, account lockout, or remote access.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Topic or keywords to search for, e.g. 'password rotation' or 'vpn'",
				},
			},
			"required": []string{"query"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		query := stringArg(args, "query")
		hits := searchPolicies(query)
		if len(hits) == 0 {
			return Result{Output: FailureOutput("No policy found for that topic")}, nil
		}

		results := make([]map[string]any, 0, len(hits))
		for _, p := range hits {
			results = append(results, map[string]any{
				"topic":   p.Topic,
				"summary": p.Summary,
			})
		}
		return Result{Output: JSONOutput(map[string]any{
			"success":  true,
			"policies": results,
		})}, nil
	})
}
