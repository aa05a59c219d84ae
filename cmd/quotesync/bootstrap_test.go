package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/app"
	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/remote"
)

const testConfig = `
server:
  log_level: error
maintenance:
  enabled: false
`

func writeTestConfig(t *testing.T, extra string) (dir string, dataDir string) {
	t.Helper()
	dir = t.TempDir()
	dataDir = filepath.Join(dir, "data")
	body := "data_dir: " + dataDir + "\n" + testConfig + extra
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir, dataDir
}

func loadTestConfig(t *testing.T, extra string) (*app.Config, string) {
	t.Helper()
	dir, dataDir := writeTestConfig(t, extra)
	cfg, err := loadApplicationConfig(dir)
	require.NoError(t, err)
	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg, dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadApplicationConfigAcceptsFilePath(t *testing.T) {
	dir, dataDir := writeTestConfig(t, "")

	cfg, err := loadApplicationConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, dataDir, cfg.DataDir)

	_, err = loadApplicationConfig(filepath.Join(dir, "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestBootstrapRuntimeWiresDefaults(t *testing.T) {
	cfg, dataDir := loadTestConfig(t, "")

	stack, err := bootstrapRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, stack.Shutdown(context.Background())) })

	require.True(t, stack.Durable.Available())
	require.FileExists(t, filepath.Join(dataDir, "quotesync.sqlite"))
	require.DirExists(t, filepath.Join(dataDir, "legacy"))
	require.IsType(t, &kvstore.FileStore{}, stack.Legacy)
	require.IsType(t, &remote.MemoryStore{}, stack.Remote)
	require.True(t, stack.Monitor.Online())
	require.NotEmpty(t, stack.Cleaner.Jobs())

	report := stack.Monitoring.Health().Evaluate(context.Background())
	require.True(t, report.Success)

	deps, err := stack.apiDeps()
	require.NoError(t, err)
	require.Equal(t, "/metrics", deps.MetricsEndpoint)
	require.True(t, deps.MigrationDefaults.SkipIfCompleted)
}

func TestBootstrapRuntimeDurableQueueAndDatabaseCache(t *testing.T) {
	cfg, _ := loadTestConfig(t, `
cache:
  backend: database
queue:
  persistence: durable
`)

	stack, err := bootstrapRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Shutdown(context.Background()) })

	ctx := context.Background()
	stack.Monitor.Set(false)
	created, err := stack.Services.Customers.Create(ctx, "owner-1", models.Customer{Name: "Acme"})
	require.NoError(t, err)
	require.True(t, stack.Queue.HasPendingChange(string(models.EntityCustomers), created.ID))
}

func TestBootstrapRuntimeWithoutDurableStore(t *testing.T) {
	cfg, dataDir := loadTestConfig(t, `
database:
  enabled: false
`)

	stack, err := bootstrapRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Shutdown(context.Background()) })

	require.False(t, stack.Durable.Available())
	require.NoFileExists(t, filepath.Join(dataDir, "quotesync.sqlite"))
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	out, err := execute(t, "version", "--config", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Contains(t, out, "quotesync dev")
}

func TestMigrateCommand(t *testing.T) {
	dir, dataDir := writeTestConfig(t, "")

	legacy, err := kvstore.NewFileStore(filepath.Join(dataDir, "legacy"))
	require.NoError(t, err)
	require.NoError(t, legacy.Set(context.Background(),
		migration.LegacyKey(models.EntityCustomers, "owner-1"),
		[]byte(`[{"id":"c1","name":"Acme"}]`)))

	out, err := execute(t, "--config", dir, "migrate", "--owner", "owner-1")
	require.NoError(t, err)
	require.Contains(t, out, `"success": true`)

	out, err = execute(t, "--config", dir, "migrate", "status", "--owner", "owner-1")
	require.NoError(t, err)
	require.Contains(t, out, "completed")

	out, err = execute(t, "--config", dir, "migrate", "status", "--owner", "nobody")
	require.NoError(t, err)
	require.Contains(t, out, "no migration recorded")
}

func TestMigrateCommandRequiresOwner(t *testing.T) {
	dir, _ := writeTestConfig(t, "")
	_, err := execute(t, "--config", dir, "migrate")
	require.ErrorContains(t, err, "owner")
}

func TestQueueCommands(t *testing.T) {
	dir, _ := writeTestConfig(t, "")

	out, err := execute(t, "--config", dir, "queue", "prune")
	require.NoError(t, err)
	require.Contains(t, out, "pruned 0 synced entries")

	out, err = execute(t, "--config", dir, "queue", "list")
	require.NoError(t, err)
	require.Contains(t, out, "RECORD")

	_, err = execute(t, "--config", dir, "queue", "mark", "missing", "bogus")
	require.ErrorContains(t, err, "unknown status")
}
