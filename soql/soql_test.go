package soql

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Verdict
	}{
		{
			name:  "simple select gains limit",
			query: "SELECT Id, Name FROM Account",
			want: Verdict{
				Decision:       AllowModified,
				RewrittenQuery: "SELECT Id, Name FROM Account LIMIT 200",
			},
		},
		{
			name:  "select with limit allowed unchanged",
			query: "SELECT Id FROM Account LIMIT 10",
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "trailing whitespace trimmed before rewrite",
			query: "SELECT Id FROM Contact   ",
			want: Verdict{
				Decision:       AllowModified,
				RewrittenQuery: "SELECT Id FROM Contact LIMIT 200",
			},
		},
		{
			name:  "delete rejected",
			query: "DELETE FROM Account",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonDMLForbidden,
				Message:  "DELETE operations are not permitted; only SELECT queries are allowed",
			},
		},
		{
			name:  "lowercase dml rejected",
			query: "update Account set Name = 'x'",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonDMLForbidden,
				Message:  "UPDATE operations are not permitted; only SELECT queries are allowed",
			},
		},
		{
			name:  "dml keyword embedded in select rejected",
			query: "SELECT Id FROM Account WHERE Name = 'a' AND Id IN (SELECT Id FROM B) UPSERT",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonDMLForbidden,
				Message:  "UPSERT operations are not permitted; only SELECT queries are allowed",
			},
		},
		{
			name:  "dml word inside identifier is fine",
			query: "SELECT UpdateCount__c FROM Account LIMIT 5",
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "dml word inside string literal is fine",
			query: "SELECT Id FROM Case WHERE Subject = 'please delete my data' LIMIT 5",
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "escaped quote in literal handled",
			query: `SELECT Id FROM Case WHERE Subject = 'it\'s an update' LIMIT 5`,
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "empty count rejected",
			query: "SELECT COUNT() FROM Case",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonCountRequiresField,
				Message:  "COUNT queries must specify a field to count, e.g. COUNT(Id)",
			},
		},
		{
			name:  "count without where rejected",
			query: "SELECT COUNT(Id) FROM Case",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonCountRequiresWhere,
				Message:  "COUNT queries must include a WHERE clause",
			},
		},
		{
			name:  "count with where allowed",
			query: "SELECT COUNT(Id) FROM Case WHERE Status = 'Open'",
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "count spaced parens without where rejected",
			query: "select count ( id ) from Case",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonCountRequiresWhere,
				Message:  "COUNT queries must include a WHERE clause",
			},
		},
		{
			name:  "group by exempt from limit rewrite",
			query: "SELECT StageName FROM Opportunity GROUP BY StageName",
			want:  Verdict{Decision: Allow},
		},
		{
			name:  "empty string invalid",
			query: "",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonSyntaxInvalid,
				Message:  "query must be a single SELECT ... FROM ... statement",
			},
		},
		{
			name:  "missing from invalid",
			query: "SELECT Id, Name",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonSyntaxInvalid,
				Message:  "query must be a single SELECT ... FROM ... statement",
			},
		},
		{
			name:  "from without object invalid",
			query: "SELECT Id FROM",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonSyntaxInvalid,
				Message:  "query must be a single SELECT ... FROM ... statement",
			},
		},
		{
			name:  "not a select invalid",
			query: "DESCRIBE Account",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonSyntaxInvalid,
				Message:  "query must be a single SELECT ... FROM ... statement",
			},
		},
		{
			name:  "statement chaining invalid",
			query: "SELECT Id FROM Account LIMIT 1; SELECT Id FROM Contact",
			want: Verdict{
				Decision: Reject,
				Reason:   ReasonSyntaxInvalid,
				Message:  "query must be a single SELECT ... FROM ... statement",
			},
		},
		{
			name:  "trailing semicolon only is tolerated",
			query: "SELECT Id FROM Account LIMIT 1;",
			want:  Verdict{Decision: Allow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.query)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Validate(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

// TestValidateRewriteIdempotent checks that re-validating a rewritten query
// approves it unchanged.
func TestValidateRewriteIdempotent(t *testing.T) {
	queries := []string{
		"SELECT Id, Name FROM Account",
		"SELECT Id FROM Contact WHERE Email != null",
		"SELECT Id, Owner.Name FROM Opportunity WHERE Amount > 100",
	}
	for _, q := range queries {
		first := Validate(q)
		if got, want := first.Decision, AllowModified; got != want {
			t.Fatalf("Validate(%q) decision got %s want %s", q, got, want)
		}
		second := Validate(first.RewrittenQuery)
		if got, want := second.Decision, Allow; got != want {
			t.Errorf("revalidated %q: got %s want %s", first.RewrittenQuery, got, want)
		}
	}
}

func TestVerdictQuery(t *testing.T) {
	original := "SELECT Id FROM Account"
	v := Validate(original)
	if got, want := v.Query(original), "SELECT Id FROM Account LIMIT 200"; got != want {
		t.Errorf("got %q want %q", got, want)
	}

	allowed := "SELECT Id FROM Account LIMIT 3"
	v = Validate(allowed)
	if got, want := v.Query(allowed), allowed; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestDecisionString(t *testing.T) {
	if got, want := AllowModified.String(), "allow_modified"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
