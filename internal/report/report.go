// Package report renders ledger records, subscriptions and audit findings
// as text tables for the CLI.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Transactions writes one row per ledger record.
func Transactions(w io.Writer, txs []*domain.Transaction) {
	table := newTable(w, []string{"Date", "Merchant", "Mode", "Amount", "Category", "Raw Description"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	})
	for _, tx := range txs {
		table.Append([]string{
			tx.Date.String(),
			tx.MerchantName,
			string(tx.PaymentMode),
			domain.FormatAmount(tx.Amount),
			tx.Category,
			tx.RawDescription,
		})
	}
	table.SetFooter([]string{"", "", "", "", "Records", strconv.Itoa(len(txs))})
	table.Render()
}

// Subscriptions writes one row per detected subscription.
func Subscriptions(w io.Writer, candidates []domain.SubscriptionCandidate) {
	table := newTable(w, []string{"Merchant", "Period", "Charges", "Latest", "Last Seen", "Next Expected", "Status", "Confidence"})
	for _, c := range candidates {
		latest := ""
		if obs, ok := c.Latest(); ok {
			latest = domain.FormatAmount(obs.Amount)
		}
		table.Append([]string{
			c.DisplayName,
			string(c.InferredPeriod),
			strconv.Itoa(c.Occurrences()),
			latest,
			c.LastSeen.String(),
			c.NextExpected.String(),
			string(c.Status),
			strconv.FormatFloat(c.Confidence, 'f', 2, 64),
		})
	}
	table.Render()
}

// Findings writes one row per audit finding.
func Findings(w io.Writer, findings []domain.AuditFinding) {
	table := newTable(w, []string{"Merchant", "Plan", "Reference", "Current", "Delta", "Severity"})
	for _, f := range findings {
		ref, delta := "-", "-"
		if !f.NoReference {
			ref = domain.FormatAmount(f.ReferencePrice)
			delta = f.DeltaPct.Shift(2).StringFixed(1) + "%"
		}
		table.Append([]string{
			f.DisplayName,
			f.Plan,
			ref,
			domain.FormatAmount(f.CurrentPrice),
			delta,
			string(f.Severity),
		})
	}
	table.Render()
}

// Batch writes the per-candidate outcome of an ingest, skipping accepted
// rows unless verbose is set.
func Batch(w io.Writer, r *pipeline.BatchReport, verbose bool) {
	table := newTable(w, []string{"#", "Outcome", "Date", "Amount", "Description", "Detail"})
	for _, res := range r.Results {
		if res.Outcome == pipeline.OutcomeAccepted && !verbose {
			continue
		}
		detail := res.Error
		if res.DuplicateOf != nil {
			detail = "duplicate of " + res.DuplicateOf.ID
		}
		table.Append([]string{
			strconv.Itoa(res.Index),
			string(res.Outcome),
			res.Candidate.Date,
			res.Candidate.Amount,
			res.Candidate.Description,
			detail,
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d candidates: %d accepted, %d duplicates, %d invalid\n",
		r.Total(), r.Accepted, r.Duplicates, r.Invalid)
}

// Scan writes the subscriptions and findings of a scan with a summary line.
func Scan(w io.Writer, r *pipeline.ScanReport) {
	fmt.Fprintf(w, "Scan as of %s over %d records", r.AsOf, r.SnapshotSize)
	if r.PriceTableVersion != "" {
		fmt.Fprintf(w, " (price table %s)", r.PriceTableVersion)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	Subscriptions(w, r.Candidates)
	fmt.Fprintln(w)
	Findings(w, r.Findings)
	fmt.Fprintf(w, "%d subscriptions, %d price hikes\n", len(r.Candidates), len(r.Hikes()))
}
