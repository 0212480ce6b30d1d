package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
)

const (
	defaultDatasetID  = "subzap"
	transactionsTable = "transactions"
)

// LedgerRepository is the ledger.Store backed by a BigQuery table.
// It holds a shared BigQuery client to avoid creating a new connection for
// each operation.
type LedgerRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewLedgerRepository creates a repository with its own client.
func NewLedgerRepository(ctx context.Context, projectID, datasetID string) (*LedgerRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewLedgerRepository: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedgerRepository: creating client: %w", err)
	}
	return NewLedgerRepositoryWithClient(client, projectID, datasetID), nil
}

// NewLedgerRepositoryWithClient wraps an existing client.
func NewLedgerRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *LedgerRepository {
	if datasetID == "" {
		datasetID = defaultDatasetID
	}
	return &LedgerRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}
}

// Close closes the BigQuery client connection.
func (r *LedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Migrate delegates to MigrateWithClient.
func (r *LedgerRepository) Migrate(ctx context.Context) error {
	return MigrateWithClient(ctx, r.client, r.projectID, r.datasetID)
}

// InsertIfAbsent delegates to InsertIfAbsentWithClient.
func (r *LedgerRepository) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (ledger.Admission, error) {
	return InsertIfAbsentWithClient(ctx, r.client, r.projectID, r.datasetID, tx)
}

// Scan delegates to ScanWithClient.
func (r *LedgerRepository) Scan(ctx context.Context, f ledger.Filter) ([]*domain.Transaction, error) {
	return ScanWithClient(ctx, r.client, r.projectID, r.datasetID, f)
}

// Get delegates to GetWithClient.
func (r *LedgerRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return GetWithClient(ctx, r.client, r.projectID, r.datasetID, id)
}

var (
	_ ledger.Store    = (*LedgerRepository)(nil)
	_ ledger.Migrator = (*LedgerRepository)(nil)
)
