package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
			transaction_id,
			transaction_date,
			merchant_name,
			merchant_key,
			raw_description,
			payment_mode,
			amount,
			category_name,
			source_id,
			reversal_of,
			created_ts`

// MigrateWithClient creates the transactions table when it is missing.
func MigrateWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string) error {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("Migrate: infer schema: %w", err)
	}
	for _, field := range schema {
		switch field.Name {
		case "category_name", "source_id", "reversal_of":
		default:
			field.Required = true
		}
	}

	table := client.DatasetInProject(projectID, datasetID).Table(transactionsTable)
	err = table.Create(ctx, &bigquery.TableMetadata{
		Schema:     schema,
		Clustering: &bigquery.Clustering{Fields: []string{"merchant_key"}},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("Migrate: create table: %w", err)
	}
	return nil
}

// InsertIfAbsentWithClient merges tx into the transactions table unless a
// row with the same (transaction_date, raw_description, amount) exists.
// BigQuery serializes DML per table, so the MERGE is the atomic check.
func InsertIfAbsentWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, tx *domain.Transaction) (ledger.Admission, error) {
	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	row := toRow(&stored)

	q := client.Query(fmt.Sprintf(`
		MERGE `+"`%s.%s.%s`"+` t
		USING (
			SELECT
				@transaction_id AS transaction_id,
				@transaction_date AS transaction_date,
				@merchant_name AS merchant_name,
				@merchant_key AS merchant_key,
				@raw_description AS raw_description,
				@payment_mode AS payment_mode,
				@amount AS amount,
				NULLIF(@category_name, '') AS category_name,
				NULLIF(@source_id, '') AS source_id,
				NULLIF(@reversal_of, '') AS reversal_of,
				@created_ts AS created_ts
		) s
		ON t.transaction_date = s.transaction_date
		  AND t.raw_description = s.raw_description
		  AND t.amount = s.amount
		WHEN NOT MATCHED THEN
		  INSERT (%s)
		  VALUES (
			s.transaction_id, s.transaction_date, s.merchant_name, s.merchant_key,
			s.raw_description, s.payment_mode, s.amount, s.category_name,
			s.source_id, s.reversal_of, s.created_ts
		  )
	`, projectID, datasetID, transactionsTable, transactionColumns))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "merchant_name", Value: row.MerchantName},
		{Name: "merchant_key", Value: row.MerchantKey},
		{Name: "raw_description", Value: row.RawDescription},
		{Name: "payment_mode", Value: row.PaymentMode},
		{Name: "amount", Value: row.Amount},
		{Name: "category_name", Value: row.CategoryName.StringVal},
		{Name: "source_id", Value: row.SourceID.StringVal},
		{Name: "reversal_of", Value: row.ReversalOf.StringVal},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: %w", err)
	}
	if affected > 0 {
		return ledger.Admission{Status: ledger.Accepted, Transaction: &stored}, nil
	}

	existing, err := queryTransactions(ctx, client, projectID, datasetID,
		"WHERE transaction_date = @transaction_date AND raw_description = @raw_description AND amount = @amount LIMIT 1",
		[]bigquery.QueryParameter{
			{Name: "transaction_date", Value: row.TransactionDate},
			{Name: "raw_description", Value: row.RawDescription},
			{Name: "amount", Value: row.Amount},
		})
	if err != nil {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: load existing: %w", err)
	}
	if len(existing) == 0 {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: merge matched a row that could not be read back")
	}
	return ledger.Admission{Status: ledger.Rejected, Existing: existing[0]}, nil
}

// ScanWithClient returns transactions matching f ordered by date,
// raw description, amount.
func ScanWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, f ledger.Filter) ([]*domain.Transaction, error) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)
	if f.MerchantKey != "" {
		where = append(where, "merchant_key = @merchant_key")
		params = append(params, bigquery.QueryParameter{Name: "merchant_key", Value: domain.MerchantKey(f.MerchantKey)})
	}
	if f.SourceID != "" {
		where = append(where, "source_id = @source_id")
		params = append(params, bigquery.QueryParameter{Name: "source_id", Value: f.SourceID})
	}
	if f.From.IsValid() {
		where = append(where, "transaction_date >= @start_date")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: f.From})
	}
	if f.To.IsValid() {
		where = append(where, "transaction_date <= @end_date")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: f.To})
	}

	var clause string
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	clause += " ORDER BY transaction_date, raw_description, amount"
	if f.Limit > 0 {
		clause += " LIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: f.Limit})
	}

	txs, err := queryTransactions(ctx, client, projectID, datasetID, clause, params)
	if err != nil {
		return nil, fmt.Errorf("Scan: %w", err)
	}
	return txs, nil
}

// GetWithClient loads one transaction by ID.
func GetWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, id string) (*domain.Transaction, error) {
	txs, err := queryTransactions(ctx, client, projectID, datasetID,
		"WHERE transaction_id = @transaction_id LIMIT 1",
		[]bigquery.QueryParameter{{Name: "transaction_id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("Get %s: %w", id, ledger.ErrNotFound)
	}
	return txs[0], nil
}

func queryTransactions(ctx context.Context, client *bigquery.Client, projectID, datasetID, clause string, params []bigquery.QueryParameter) ([]*domain.Transaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM `+"`%s.%s.%s`"+`
		%s
	`, transactionColumns, projectID, datasetID, transactionsTable, clause))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var txs []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		tx, err := r.toTransaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics == nil {
		return 0, fmt.Errorf("job returned no statistics")
	}
	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0, fmt.Errorf("unexpected job statistics %T", status.Statistics.Details)
	}
	return stats.NumDMLAffectedRows, nil
}
