package sqlagent

import (
	"strings"
	"testing"

	"github.com/invoiceflow/assistant/internal/agent/model"
)

func TestConfidenceEmptySQL(t *testing.T) {
	if got := Confidence("", "show invoices"); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestConfidenceRewardsStructure(t *testing.T) {
	bare := Confidence("vendor total amount list", "show invoices")
	structured := Confidence("SELECT vendor, total FROM invoices WHERE user_id = 7", "show invoices")
	if structured <= bare {
		t.Fatalf("structured %v should beat bare %v", structured, bare)
	}
}

func TestConfidenceRewardsTermOverlap(t *testing.T) {
	without := Confidence("SELECT id FROM invoices WHERE user_id = 7", "unrelated words entirely")
	with := Confidence("SELECT vendor, total FROM invoices WHERE user_id = 7", "vendor total invoices")
	if with <= without {
		t.Fatalf("overlap %v should beat none %v", with, without)
	}
}

func TestConfidencePenalisesImplausibleLength(t *testing.T) {
	short := Confidence("SELECT 1", "show invoices")
	normal := Confidence("SELECT vendor FROM invoices WHERE user_id = 7", "show invoices")
	if short >= normal {
		t.Fatalf("short %v should score below normal %v", short, normal)
	}

	long := Confidence("SELECT vendor FROM invoices WHERE user_id = 7 AND "+strings.Repeat("total > 0 AND ", 40)+"1=1", "show invoices")
	if long >= normal {
		t.Fatalf("long %v should score below normal %v", long, normal)
	}
}

func TestConfidenceClamped(t *testing.T) {
	query := strings.Repeat("vendor total amount date category status city country ", 3)
	got := Confidence("SELECT vendor, total, amount, date, category, status, city, country FROM invoices JOIN items ON 1=1 WHERE user_id = 7", query)
	if got > 1 {
		t.Fatalf("confidence above 1: %v", got)
	}
}

func TestClassifyBuckets(t *testing.T) {
	cases := []struct {
		sql  string
		want model.Complexity
	}{
		{"SELECT vendor FROM invoices", model.Simple},
		{"SELECT vendor FROM invoices WHERE user_id = 7 LIMIT 10", model.Simple},
		{"SELECT vendor, SUM(total) FROM invoices WHERE user_id = 7 GROUP BY vendor", model.Moderate},
		{
			"SELECT vendor, SUM(total), AVG(total) FROM invoices i JOIN items it ON it.invoice_id = i.id " +
				"WHERE i.user_id = 7 AND i.total > (SELECT AVG(total) FROM invoices WHERE user_id = 7) " +
				"GROUP BY vendor HAVING SUM(total) > 100 ORDER BY 2 DESC",
			model.Complex,
		},
	}
	for _, tc := range cases {
		if got := Classify(tc.sql); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.sql, got, tc.want)
		}
	}
}
