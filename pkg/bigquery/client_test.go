package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		gcp  config.GCPConfig
		cfg  config.BigQueryConfig
		want error
	}{
		{"project", config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", DailyReportsTable: "t"}, errProjectIDRequired},
		{"dataset", config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{DailyReportsTable: "t"}, errDatasetRequired},
		{"table", config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d", DailyReportsTable: "  "}, errTableRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(ctx, tc.gcp, tc.cfg, nil)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.Empty(t, c.DailyReportsTable())
	require.NoError(t, c.Close())
}

func TestDescribeNotFound(t *testing.T) {
	missing := &googleapi.Error{Code: http.StatusNotFound}
	require.EqualError(t, describe("table", "ledger_daily_reports", missing), `table "ledger_daily_reports" does not exist`)

	wrapped := fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusForbidden})
	err := describe("dataset", "walletcore", wrapped)
	require.Contains(t, err.Error(), `checking dataset "walletcore"`)
	require.False(t, isNotFound(errors.New("plain")))
}
