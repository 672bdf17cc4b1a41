package clickhouse

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"trailing-lab/internal/storage/migrations"
)

// One container serves the whole package; tests truncate on entry.
var shared struct {
	once      sync.Once
	container testcontainers.Container
	dsn       string
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.container != nil {
		_ = shared.container.Terminate(context.Background())
	}
	os.Exit(code)
}

func startContainer(ctx context.Context) (string, error) {
	shared.once.Do(func() {
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "clickhouse/clickhouse-server:24.8-alpine",
				ExposedPorts: []string{"9000/tcp"},
				Env: map[string]string{
					"CLICKHOUSE_USER":                      "default",
					"CLICKHOUSE_PASSWORD":                  "",
					"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1",
				},
				WaitingFor: wait.ForAll(
					wait.ForListeningPort("9000/tcp"),
					wait.ForLog("Ready for connections"),
				).WithDeadline(90 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			shared.err = fmt.Errorf("start clickhouse container: %w", err)
			return
		}
		shared.container = c

		host, err := c.Host(ctx)
		if err != nil {
			shared.err = err
			return
		}
		port, err := c.MappedPort(ctx, "9000/tcp")
		if err != nil {
			shared.err = err
			return
		}
		shared.dsn = fmt.Sprintf("clickhouse://default:@%s:%s/trailing_test?dial_timeout=10s", host, port.Port())
	})
	return shared.dsn, shared.err
}

// setupTestDB returns a connection to a migrated, empty price_samples
// table. The connection is closed when the test ends.
func setupTestDB(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse integration test skipped in short mode")
	}

	ctx := context.Background()
	dsn, err := startContainer(ctx)
	require.NoError(t, err)

	admin, err := NewConnWithDatabase(ctx, dsn, "default")
	require.NoError(t, err)
	_, err = migrations.EnsureClickhouseDatabase(ctx, admin, dsn)
	require.NoError(t, admin.Close())
	require.NoError(t, err)

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, migrations.RunClickhouseMigrations(ctx, conn))
	require.NoError(t, conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS price_samples"))
	return conn
}
