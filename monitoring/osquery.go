package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/osquery/osquery-go"
	"github.com/osquery/osquery-go/plugin/table"

	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
)

const (
	ExtensionName = "tiffwatch"
	TableName     = "tiff_files"
)

type (
	ExtensionServer interface {
		RegisterPlugin(plugins ...osquery.OsqueryPlugin)
		Run() error
		Shutdown(ctx context.Context) error
	}

	// Extension serves the latest directory snapshot to osqueryd as a table.
	Extension struct {
		server ExtensionServer
		source SnapshotSource
		logger *logger.Logger
	}
)

func NewExtension(socketPath string, source SnapshotSource, log *logger.Logger) (*Extension, error) {
	server, err := osquery.NewExtensionManagerServer(ExtensionName, socketPath, osquery.ServerTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create osquery extension server: %w", err)
	}
	return newExtension(server, source, log), nil
}

func newExtension(server ExtensionServer, source SnapshotSource, log *logger.Logger) *Extension {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extension{server: server, source: source, logger: log}
}

func Columns() []table.ColumnDefinition {
	return []table.ColumnDefinition{
		table.TextColumn("name"),
		table.BigIntColumn("size"),
		table.TextColumn("mtime"),
		table.IntegerColumn("pending"),
		table.TextColumn("directory"),
	}
}

// Start registers the table and blocks serving osqueryd until ctx is done or
// the server fails.
func (e *Extension) Start(ctx context.Context) error {
	e.server.RegisterPlugin(table.NewPlugin(TableName, Columns(), e.generate))

	errChan := make(chan error, 1)
	go func() {
		errChan <- e.server.Run()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.logger.Warnw("osquery extension shutdown failed", "error", err)
		}
		return nil
	}
}

func (e *Extension) generate(_ context.Context, _ table.QueryContext) ([]map[string]string, error) {
	snap, ok := e.source.Latest()
	if !ok {
		return []map[string]string{}, nil
	}
	return snapshotRows(snap), nil
}

func snapshotRows(snap models.Snapshot) []map[string]string {
	rows := make([]map[string]string, 0, snap.Count())
	for _, name := range snap.Names() {
		f := snap.Files[name]
		pending := "0"
		if f.Pending {
			pending = "1"
		}
		rows = append(rows, map[string]string{
			"name":      f.Name,
			"size":      strconv.FormatInt(f.Size, 10),
			"mtime":     strconv.FormatInt(f.ModTime.Unix(), 10),
			"pending":   pending,
			"directory": snap.Directory,
		})
	}
	return rows
}
