package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// MockStorageService is a mock implementation of StorageService.
type MockStorageService struct {
	UploadFileFunc func(ctx context.Context, bucketName, objectName, filePath string) error
	FetchFunc      func(ctx context.Context, uri string) ([]byte, error)
}

func (m *MockStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	if m.UploadFileFunc != nil {
		return m.UploadFileFunc(ctx, bucketName, objectName, filePath)
	}
	return nil
}

func (m *MockStorageService) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, uri)
	}
	return nil, nil
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/jan.csv", "bucket", "jan.csv", false},
		{"gs://bucket/2024/01/jan.json", "bucket", "2024/01/jan.json", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"/tmp/jan.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI(%q) = %q, %q, want %q, %q", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/jan.csv": "jan.csv",
		"gs://bucket/feb.json":       "feb.json",
		"gs://bucket":                "bucket",
	}
	for uri, want := range tests {
		if got := ExtractFilenameFromGCSURI(uri); got != want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"jan.json", FormatJSON},
		{"gs://b/jan.JSON", FormatJSON},
		{"jan.jsonl", FormatJSONL},
		{"jan.ndjson", FormatJSONL},
		{"jan.csv", FormatCSV},
	}
	for _, tt := range tests {
		got, err := FormatFromName(tt.name)
		if err != nil {
			t.Fatalf("FormatFromName(%q) error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("FormatFromName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if _, err := FormatFromName("statement.pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat for pdf, got %v", err)
	}
}

func TestDecode_JSONArray(t *testing.T) {
	data := []byte(`[
		{"description": "UPI/NETFLIX/netflix@icici", "amount": 649.00, "date": "05/01/2024"},
		{"raw_description": "POS 4321 SPOTIFY MUMBAI", "amount": "119", "date": "2024-01-07", "category": "Entertainment", "source_id": "card.pdf"}
	]`)

	got, err := Decode(FormatJSON, data, "jan.json")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}

	if got[0].Amount != "649.00" {
		t.Errorf("numeric amount should keep its literal text, got %q", got[0].Amount)
	}
	if got[0].SourceID != "jan.json" {
		t.Errorf("expected default source id, got %q", got[0].SourceID)
	}
	if got[1].Description != "POS 4321 SPOTIFY MUMBAI" {
		t.Errorf("raw_description not used, got %q", got[1].Description)
	}
	if got[1].SourceID != "card.pdf" {
		t.Errorf("explicit source id overwritten, got %q", got[1].SourceID)
	}
	if got[1].Category != "Entertainment" {
		t.Errorf("category hint lost, got %q", got[1].Category)
	}
}

func TestDecode_JSONEnvelope(t *testing.T) {
	data := []byte(`{"transactions": [
		{"date": "2024-01-05", "merchant_name": "Netflix", "raw_description": "NETFLIX.COM", "payment_mode": "Card", "amount": 649, "category": null}
	]}`)

	got, err := Decode(FormatJSON, data, "x")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.MerchantHint != "Netflix" || c.Amount != "649" || c.Category != "" {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestDecode_JSONErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"scalar", `42`},
		{"no transactions key", `{"rows": []}`},
		{"transactions not array", `{"transactions": {}}`},
		{"element not object", `["x"]`},
		{"description wrong type", `[{"description": 12}]`},
		{"amount wrong type", `[{"description": "x", "amount": true}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(FormatJSON, []byte(tt.data), "x"); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecode_JSONL(t *testing.T) {
	data := []byte(`{"description": "NETFLIX", "amount": "649", "date": "2024-01-05"}

{"description": "SPOTIFY", "amount": 119, "date": "2024-01-07"}
`)
	got, err := Decode(FormatJSONL, data, "feed.jsonl")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[1].Amount != "119" || got[1].SourceID != "feed.jsonl" {
		t.Errorf("unexpected second candidate: %+v", got[1])
	}

	if _, err := Decode(FormatJSONL, []byte("{\"description\": 1}\n"), "x"); err == nil {
		t.Error("expected error for wrongly typed line")
	}
}

func TestDecode_CSV(t *testing.T) {
	data := []byte("Date,Description,Amount,Category\n" +
		"05/01/2024,\"UPI/NETFLIX/netflix@icici, ref 1234\",649.00,Entertainment\n" +
		",,,\n" +
		"07/01/2024,POS SPOTIFY MUMBAI,\"1,119.00\",\n")

	got, err := Decode(FormatCSV, data, "jan.csv")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates (blank row skipped), got %d", len(got))
	}
	if got[0].Description != "UPI/NETFLIX/netflix@icici, ref 1234" {
		t.Errorf("quoted description not preserved, got %q", got[0].Description)
	}
	if got[1].Amount != "1,119.00" {
		t.Errorf("grouped amount changed, got %q", got[1].Amount)
	}
	if got[1].SourceID != "jan.csv" {
		t.Errorf("expected default source id, got %q", got[1].SourceID)
	}
}

func TestDecode_CSVDebitCredit(t *testing.T) {
	data := []byte("Txn Date,Narration,Withdrawal Amt.,Deposit Amt.\n" +
		"05/01/2024,NETFLIX,649.00,\n" +
		"06/01/2024,SALARY,,50000.00\n")

	got, err := Decode(FormatCSV, data, "hdfc.csv")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Amount != "649.00" {
		t.Errorf("debit amount = %q, want 649.00", got[0].Amount)
	}
	if got[1].Amount != "50000.00 Cr" {
		t.Errorf("credit amount = %q, want %q", got[1].Amount, "50000.00 Cr")
	}
}

func TestDecode_CSVZeroFilledDebitCredit(t *testing.T) {
	data := []byte("Date,Narration,Withdrawal Amt.,Deposit Amt.\n" +
		"05/01/24,SALARY CREDIT ACME,0.00,50000.00\n" +
		"06/01/24,NETFLIX,649.00,0.00\n" +
		"07/01/24,REFUND,-,\"1,200.00\"\n")

	got, err := Decode(FormatCSV, data, "hdfc.csv")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []string{"50000.00 Cr", "649.00", "1,200.00 Cr"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Amount != want[i] {
			t.Errorf("row %d amount = %q, want %q", i, got[i].Amount, want[i])
		}
	}
}

func TestDecode_CSVKeepsDescriptionVerbatim(t *testing.T) {
	data := []byte("date,description,amount\n2024-01-05,  NETFLIX.COM  ,649\n")

	got, err := Decode(FormatCSV, data, "x")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Description != "  NETFLIX.COM  " {
		t.Errorf("description = %q, want it byte-identical to the cell", got[0].Description)
	}
	if got[0].Amount != "649" || got[0].Date != "2024-01-05" {
		t.Errorf("other columns should be trimmed, got %+v", got[0])
	}
}

func TestDecode_CSVMissingColumns(t *testing.T) {
	if _, err := Decode(FormatCSV, []byte("date,amount\n2024-01-05,10\n"), "x"); err == nil {
		t.Error("expected error for missing description column")
	}
	if _, err := Decode(FormatCSV, []byte("date,description\n2024-01-05,x\n"), "x"); err == nil {
		t.Error("expected error for missing amount column")
	}
	got, err := Decode(FormatCSV, nil, "x")
	if err != nil || len(got) != 0 {
		t.Errorf("empty csv: got %v, %v", got, err)
	}
}

func TestLoader_LocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jan.csv")
	if err := os.WriteFile(path, []byte("date,description,amount\n2024-01-05,NETFLIX,649\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := NewLoader(nil).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 || got[0].SourceID != "jan.csv" {
		t.Errorf("unexpected candidates: %+v", got)
	}
}

func TestLoader_GCS(t *testing.T) {
	var fetched string
	storage := &MockStorageService{
		FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			fetched = uri
			return []byte(`[{"description": "NETFLIX", "amount": "649", "date": "2024-01-05"}]`), nil
		},
	}

	got, err := NewLoader(storage).Load(context.Background(), "gs://statements/2024/jan.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if fetched != "gs://statements/2024/jan.json" {
		t.Errorf("fetched %q", fetched)
	}
	if len(got) != 1 || got[0].SourceID != "jan.json" {
		t.Errorf("unexpected candidates: %+v", got)
	}
}

func TestLoader_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewLoader(nil).Load(ctx, "gs://statements/jan.json"); err == nil {
		t.Error("expected error without storage service")
	}

	fetchErr := errors.New("bucket unavailable")
	storage := &MockStorageService{
		FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			return nil, fetchErr
		},
	}
	if _, err := NewLoader(storage).Load(ctx, "gs://statements/jan.json"); !errors.Is(err, fetchErr) {
		t.Errorf("expected fetch error to propagate, got %v", err)
	}

	if _, err := NewLoader(nil).Load(ctx, filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewLoader(nil).Load(ctx, "statement.pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
