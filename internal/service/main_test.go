package service

import (
	"testing"

	"github.com/ayo6706/ledger-core/internal/testutil/pgtest"
)

func TestMain(m *testing.M) {
	pgtest.Main(m)
}
