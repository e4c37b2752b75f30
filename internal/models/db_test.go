package models

import "testing"

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{
		"":           DriverSQLite,
		"SQLite":     DriverSQLite,
		"sqlite3":    DriverSQLite,
		"postgres":   DriverPostgres,
		"postgresql": DriverPostgres,
		" pgx ":      DriverPostgres,
	}
	for input, want := range cases {
		got, err := NormalizeDriver(input)
		if err != nil {
			t.Fatalf("normalize %q failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("normalize %q want %s got %s", input, want, got)
		}
	}
	if _, err := NormalizeDriver("mysql"); err == nil {
		t.Fatalf("mysql should be rejected")
	}
}

func TestDriverFromURL(t *testing.T) {
	if got := DriverFromURL("postgres://u:p@localhost:5432/shop"); got != DriverPostgres {
		t.Fatalf("postgres url want postgres got %s", got)
	}
	if got := DriverFromURL("host=localhost user=u dbname=shop sslmode=disable"); got != DriverPostgres {
		t.Fatalf("postgres kv dsn want postgres got %s", got)
	}
	if got := DriverFromURL("./db/shop.db"); got != DriverSQLite {
		t.Fatalf("file path want sqlite got %s", got)
	}
}

func TestWithSQLitePragmas(t *testing.T) {
	got := withSQLitePragmas("file:shop.db")
	want := "file:shop.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=case_sensitive_like(1)"
	if got != want {
		t.Fatalf("pragmas mismatch, want %s got %s", want, got)
	}

	got = withSQLitePragmas("file:shop.db?mode=memory&_pragma=foreign_keys(0)")
	want = "file:shop.db?mode=memory&_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)&_pragma=case_sensitive_like(1)"
	if got != want {
		t.Fatalf("existing pragma should be kept, want %s got %s", want, got)
	}
}

func TestSQLiteMemoryUsesSingleConnection(t *testing.T) {
	for _, dsn := range []string{"", "file::memory:", "file:shop?mode=memory"} {
		if !isSQLiteMemory(dsn) {
			t.Fatalf("%q should be treated as in-memory", dsn)
		}
	}
	if isSQLiteMemory("./db/shop.db") {
		t.Fatalf("file path should not be treated as in-memory")
	}

	db, err := OpenDB(DriverSQLite, "", DBPoolConfig{MaxOpenConns: 8, ConnMaxIdleTimeSeconds: 1}, nil)
	if err != nil {
		t.Fatalf("open memory db failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("acquire pool failed: %v", err)
	}
	defer sqlDB.Close()
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("memory db should be pinned to one connection, got %d", got)
	}

	if err := db.Exec("CREATE TABLE memory_rows (id INTEGER PRIMARY KEY)").Error; err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	var n int64
	for i := 0; i < 4; i++ {
		if err := db.Raw("SELECT COUNT(*) FROM memory_rows").Scan(&n).Error; err != nil {
			t.Fatalf("table should be visible on every query: %v", err)
		}
	}
}

func TestMoneyEqualRoundsToCents(t *testing.T) {
	if !MustMoney("19.990").Equal(MustMoney("19.99")) {
		t.Fatalf("money with trailing zero should be equal")
	}
	if MustMoney("19.99").Equal(MustMoney("19.98")) {
		t.Fatalf("different amounts should not be equal")
	}
	if got := MustMoney("5").String(); got != "5.00" {
		t.Fatalf("money string want 5.00 got %s", got)
	}
}
