package db

import "testing"

func TestToMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/complai?sslmode=disable", "pgx5://u:p@localhost:5432/complai?sslmode=disable", false},
		{"postgresql://localhost/complai", "pgx5://localhost/complai", false},
		{"mysql://localhost/complai", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		got, err := toMigrateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("toMigrateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("toMigrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
