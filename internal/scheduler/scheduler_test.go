package scheduler

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalford/revcast/internal/config"
	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/events"
	"github.com/mhalford/revcast/internal/export"
	"github.com/mhalford/revcast/internal/runner"
)

func seededRunner(t *testing.T) (*runner.Runner, *database.Warehouse, *events.Manager) {
	t.Helper()
	w, err := database.OpenTestWarehouse("scheduler_" + t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	conn := w.Facts.Conn()
	_, err = conn.Exec(`
		INSERT INTO customers (company_id, customer_id, segment, crm_health_input, created_date)
		VALUES ('acme', 'cust-1', 'smb', 8.0, '2024-01-15')`)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO subscription_line_items
			(company_id, contract_id, line_id, customer_id, product_id,
			 contract_start_date, contract_end_date, billing_frequency,
			 quantity, unit_price, discount_pct, status)
		VALUES ('acme', 'c1', 'l1', 'cust-1', 'p1',
			'2025-01-01', '2025-12-31', 'monthly', 1, 100, 0, 'active')`)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO usage_monthly (company_id, month, customer_id, usage_count, active_users)
		VALUES ('acme', '2025-06-01', 'cust-1', 1000, 10)`)
	require.NoError(t, err)

	manager := events.NewManager(events.NewBus(), zerolog.Nop())
	return runner.New(w, manager, zerolog.Nop()), w, manager
}

func TestPipelineJobRunsAndPublishes(t *testing.T) {
	r, w, _ := seededRunner(t)
	job := NewPipelineJob(r, nil, zerolog.Nop())

	assert.Equal(t, "pipeline_run", job.Name())
	require.NoError(t, job.Run())

	var rows int
	require.NoError(t, w.Forecast.Conn().QueryRow(`SELECT count(*) FROM forecast_records`).Scan(&rows))
	assert.Greater(t, rows, 0)
}

func TestPipelineJobExportsArtifacts(t *testing.T) {
	r, w, manager := seededRunner(t)
	cfg := &config.Config{DataDir: t.TempDir(), ExportDir: t.TempDir()}
	exporter := export.NewExporter(w, cfg, manager, zerolog.Nop())

	job := NewPipelineJob(r, exporter, zerolog.Nop())
	require.NoError(t, job.Run())

	entries, err := os.ReadDir(cfg.ExportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "one artifact directory per run")
}

func TestSchedulerRunNow(t *testing.T) {
	r, _, _ := seededRunner(t)
	s := New(zerolog.Nop())

	require.NoError(t, s.RunNow(NewPipelineJob(r, nil, zerolog.Nop())))
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	r, _, _ := seededRunner(t)
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", NewPipelineJob(r, nil, zerolog.Nop()))
	assert.Error(t, err)
}
