package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osquery/osquery-go"
	"github.com/osquery/osquery-go/plugin/table"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/tejiriaustin/tiffwatch/models"
)

type MockServer struct {
	mock.Mock
}

func (m *MockServer) RegisterPlugin(plugins ...osquery.OsqueryPlugin) {
	m.Called(plugins)
}

func (m *MockServer) Run() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockServer) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type staticSource struct {
	snap models.Snapshot
	ok   bool
}

func (s staticSource) Latest() (models.Snapshot, bool) {
	return s.snap, s.ok
}

type ExtensionTestSuite struct {
	suite.Suite
	mockServer *MockServer
	snapshot   models.Snapshot
}

func (suite *ExtensionTestSuite) SetupTest() {
	suite.mockServer = new(MockServer)
	mtime := time.Unix(1549631760, 0)
	suite.snapshot = models.Snapshot{
		Directory: "/data/scans",
		Files: map[string]models.FileEntry{
			"b.tiff": {Name: "b.tiff", Size: 2048, ModTime: mtime, Pending: true},
			"a.tif":  {Name: "a.tif", Size: 1024, ModTime: mtime},
		},
	}
}

func (suite *ExtensionTestSuite) TestStart() {
	testCases := []struct {
		name       string
		mockRunErr error
		expectErr  string
	}{
		{
			name:       "Server Run Error",
			mockRunErr: errors.New("server run error"),
			expectErr:  "server run error",
		},
		{
			name:       "Server Stops Cleanly",
			mockRunErr: nil,
			expectErr:  "",
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.mockServer.On("RegisterPlugin", mock.Anything).Return()
			suite.mockServer.On("Run").Return(tc.mockRunErr)

			ext := newExtension(suite.mockServer, staticSource{snap: suite.snapshot, ok: true}, nil)
			err := ext.Start(context.Background())

			if tc.expectErr != "" {
				suite.EqualError(err, tc.expectErr)
			} else {
				suite.NoError(err)
			}

			suite.mockServer.AssertCalled(suite.T(), "RegisterPlugin", mock.Anything)
			suite.mockServer.AssertCalled(suite.T(), "Run")
			suite.mockServer.ExpectedCalls = nil
			suite.mockServer.Calls = nil
		})
	}
}

func (suite *ExtensionTestSuite) TestStartShutsDownOnCancel() {
	block := make(chan struct{})
	suite.mockServer.On("RegisterPlugin", mock.Anything).Return()
	suite.mockServer.On("Run").Run(func(mock.Arguments) { <-block }).Return(nil)
	suite.mockServer.On("Shutdown", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		close(block)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := newExtension(suite.mockServer, staticSource{}, nil)
	suite.NoError(ext.Start(ctx))
	suite.mockServer.AssertCalled(suite.T(), "Shutdown", mock.Anything)
}

func (suite *ExtensionTestSuite) TestGenerate() {
	ext := newExtension(suite.mockServer, staticSource{snap: suite.snapshot, ok: true}, nil)

	rows, err := ext.generate(context.Background(), table.QueryContext{})
	suite.NoError(err)
	suite.Equal([]map[string]string{
		{"name": "a.tif", "size": "1024", "mtime": "1549631760", "pending": "0", "directory": "/data/scans"},
		{"name": "b.tiff", "size": "2048", "mtime": "1549631760", "pending": "1", "directory": "/data/scans"},
	}, rows)
}

func (suite *ExtensionTestSuite) TestGenerateBeforeFirstScan() {
	ext := newExtension(suite.mockServer, staticSource{}, nil)

	rows, err := ext.generate(context.Background(), table.QueryContext{})
	suite.NoError(err)
	suite.Empty(rows)
}

func (suite *ExtensionTestSuite) TestColumns() {
	names := make([]string, 0)
	for _, c := range Columns() {
		names = append(names, c.Name)
	}
	suite.Equal([]string{"name", "size", "mtime", "pending", "directory"}, names)
}

func TestExtensionTestSuite(t *testing.T) {
	suite.Run(t, new(ExtensionTestSuite))
}
