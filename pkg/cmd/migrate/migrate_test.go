package migrate

import "testing"

func Test_prepareURLForDB(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "postgresql://u:p@db:5432/sdc", "postgresql://u:p@db:5432/sdc?sslmode=disable"},
		{"other options", "postgresql://db/sdc?connect_timeout=5", "postgresql://db/sdc?connect_timeout=5&sslmode=disable"},
		{"explicit sslmode", "postgresql://db/sdc?sslmode=require", "postgresql://db/sdc?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prepareURLForDB(tt.url); got != tt.want {
				t.Errorf("prepareURLForDB() = %v, want %v", got, tt.want)
			}
		})
	}
}
