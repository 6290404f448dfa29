package iot

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/seizure-alert-service/pkg/db"
	notifyMocks "liyu1981.xyz/seizure-alert-service/pkg/notify/mocks"
)

func GetMockIOTWithMemorySqliteDialector(t *testing.T) (
	*gomock.Controller,
	*IOT,
	*db.SqlStore,
	*notifyMocks.MockDispatcher,
) {
	ctrl := gomock.NewController(t)

	instance, err := db.Open(db.UseIsolatedMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = instance.Close() })

	store := db.NewSqlStore(instance)
	mockDispatcher := notifyMocks.NewMockDispatcher(ctrl)

	return ctrl, New(store, mockDispatcher), store, mockDispatcher
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}
