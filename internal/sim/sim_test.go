package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trustnet/internal/transaction"
)

func writeDataset(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud\n" + rows
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunReplaysDataset(t *testing.T) {
	var received []transaction.Transaction
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var tx transaction.Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		received = append(received, tx)
		flagged := tx.Type == "TRANSFER"
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transaction_id":    tx.NameOrig + "-1",
			"fraud_probability": 0.5,
			"is_fraud":          flagged,
		})
	}))
	defer ts.Close()

	path := writeDataset(t,
		"1,PAYMENT,10,C1,100,90,M1,0,0,0\n"+
			"1,TRANSFER,200,C2,200,0,C3,0,0,1\n"+
			"2,PAYMENT,20,C4,100,80,M2,0,0,0\n")

	s := New(Config{ServerURL: ts.URL, DataPath: path, Timeout: time.Second})
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Sent != 3 || summary.Flagged != 1 || summary.Errors != 0 {
		t.Errorf("summary = %+v, want 3 sent, 1 flagged", summary)
	}
	if len(received) != 3 || received[1].NameOrig != "C2" {
		t.Errorf("server received %d transactions", len(received))
	}
}

func TestRunHonorsLimit(t *testing.T) {
	var count int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		json.NewEncoder(w).Encode(map[string]interface{}{"is_fraud": false})
	}))
	defer ts.Close()

	path := writeDataset(t,
		"1,PAYMENT,10,C1,100,90,M1,0,0,0\n"+
			"1,PAYMENT,10,C2,100,90,M1,0,0,0\n"+
			"1,PAYMENT,10,C3,100,90,M1,0,0,0\n")

	s := New(Config{ServerURL: ts.URL, DataPath: path, Limit: 2, Timeout: time.Second})
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 2 || count != 2 {
		t.Errorf("sent %d requests, want 2", count)
	}
}

func TestRunCountsServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	path := writeDataset(t, "1,PAYMENT,10,C1,100,90,M1,0,0,0\n")

	s := New(Config{ServerURL: ts.URL, DataPath: path, Timeout: time.Second})
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Errors != 1 || summary.Sent != 0 {
		t.Errorf("summary = %+v, want 1 error", summary)
	}
}

func TestRunCanceledContext(t *testing.T) {
	path := writeDataset(t, "1,PAYMENT,10,C1,100,90,M1,0,0,0\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Config{ServerURL: "http://127.0.0.1:0", DataPath: path, Timeout: time.Second})
	if _, err := s.Run(ctx); err == nil {
		t.Fatal("Run() with canceled context should fail")
	}
}
