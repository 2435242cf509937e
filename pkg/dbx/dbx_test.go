package dbx_test

import (
	"strings"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/dbx"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := dbx.Versions()
	if err != nil {
		t.Fatal(err)
	}

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", n)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
	for _, want := range []string{"000001_email_queue", "000002_email_tracking"} {
		if !ups[want] {
			t.Errorf("missing migration %s", want)
		}
	}
}
