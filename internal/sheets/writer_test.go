package sheets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/inward-bound/internal/model"
)

func TestPrepareLedgerData(t *testing.T) {
	older := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	records := []model.TransactionRecord{
		{
			TransactionReference: "FIRC-OLD",
			ValueDate:            older,
			Currency:             "EUR",
		},
		{
			TransactionReference: "FIRC-NEW",
			ValueDate:            newer,
			Amount:               decimal.NewNullDecimal(decimal.RequireFromString("1500.00")),
			Currency:             "USD",
			Remitter:             "ACME CORP",
			Category:             "inward_remittance",
		},
	}

	values := prepareLedgerData(records)

	if len(values) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(values))
	}
	if values[0][0] != "Transaction Reference" {
		t.Errorf("header[0] = %v", values[0][0])
	}

	// Newest value date first.
	if values[1][0] != "FIRC-NEW" {
		t.Errorf("row 1 reference = %v, want FIRC-NEW", values[1][0])
	}
	if values[1][1] != "2026-08-10" {
		t.Errorf("row 1 value date = %v", values[1][1])
	}
	if values[1][2] != "1500.00" {
		t.Errorf("row 1 amount = %v", values[1][2])
	}

	// Missing amount renders as empty cell, never zero.
	if values[2][0] != "FIRC-OLD" {
		t.Errorf("row 2 reference = %v", values[2][0])
	}
	if values[2][2] != "" {
		t.Errorf("row 2 amount = %v, want empty", values[2][2])
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "service account only",
			mutate: func(c *Config) { c.ServiceAccountPath = "/tmp/sa.json" },
		},
		{
			name: "oauth only",
			mutate: func(c *Config) {
				c.ClientID = "id"
				c.ClientSecret = "secret"
				c.RefreshToken = "token"
			},
		},
		{
			name: "oauth with saved token file",
			mutate: func(c *Config) {
				c.ClientID = "id"
				c.ClientSecret = "secret"
				c.TokenFile = "/tmp/token.json"
			},
		},
		{
			name:    "no auth",
			mutate:  func(*Config) {},
			wantErr: true,
		},
		{
			name: "oauth client without any token",
			mutate: func(c *Config) {
				c.ClientID = "id"
				c.ClientSecret = "secret"
			},
			wantErr: true,
		},
		{
			name: "both auth methods",
			mutate: func(c *Config) {
				c.ServiceAccountPath = "/tmp/sa.json"
				c.ClientID = "id"
				c.ClientSecret = "secret"
				c.RefreshToken = "token"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
