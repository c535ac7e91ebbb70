package config

import "testing"

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "pulse", Password: "secret", DBName: "pulse", SSLMode: "disable"}

	got := d.DSN()
	want := "host=db port=5432 user=pulse password=secret dbname=pulse sslmode=disable"
	if got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}

func TestURLEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "svc@prod", Password: "p@ss/w#rd", DBName: "pulse", SSLMode: "require"}

	got := d.URL()
	want := "pgx5://svc%40prod:p%40ss%2Fw%23rd@db:5432/pulse?sslmode=require"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
