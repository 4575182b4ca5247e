package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/store/storetest"
)

func TestCheckTablesExist_ReportsNoWhenAbsent(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(false)

	result, err := CheckTablesExist(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, TablesExistNo, result)
}

func TestCheckTablesExist_ReportsYesWhenPresent(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(true)

	result, err := CheckTablesExist(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, TablesExistYes, result)
}

func TestRunSync_RefusesWhenTablesMissing(t *testing.T) {
	fake := storetest.New()
	fake.SetTablesExist(false)

	_, err := RunSync(context.Background(), Deps{Store: fake}, nil, false)
	assert.Error(t, err)
}
