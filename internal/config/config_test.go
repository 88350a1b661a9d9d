package config

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid regulator mode",
			cfg: Config{
				AppDatabasePath:          "./data/app.db",
				WorkbookPath:             "./data/wb.xlsx",
				BalanceMode:              ModeRegulator,
				BalanceErrorThresholdPct: 5.0,
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				WorkbookPath:             "./data/wb.xlsx",
				BalanceMode:              ModeRegulator,
				BalanceErrorThresholdPct: 5.0,
			},
			wantErr: true,
		},
		{
			name: "invalid balance mode",
			cfg: Config{
				AppDatabasePath:          "./data/app.db",
				WorkbookPath:             "./data/wb.xlsx",
				BalanceMode:              "BOGUS",
				BalanceErrorThresholdPct: 5.0,
			},
			wantErr: true,
		},
		{
			name: "zero threshold",
			cfg: Config{
				AppDatabasePath: "./data/app.db",
				WorkbookPath:    "./data/wb.xlsx",
				BalanceMode:     ModeAudit,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
