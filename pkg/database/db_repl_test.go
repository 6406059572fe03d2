package database_test

import (
	"strings"
	"testing"

	"dinojoin/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseRepl(t *testing.T) {
	db, err := database.OpenMem(testConfig)
	require.NoError(t, err)
	defer db.Close()
	r := database.DatabaseRepl(db)
	run := func(line string) (string, error) {
		trigger := strings.Fields(line)[0]
		command, ok := r.GetCommands()[trigger]
		require.True(t, ok, trigger)
		return command(line, nil)
	}

	out, err := run("create l 1:10 2:20 3:30 4:40")
	require.NoError(t, err)
	assert.Equal(t, "relation l created on pages [0, 1).\n", out)
	_, err = run("create r 2:200 4:400")
	require.NoError(t, err)
	_, err = run("generate g 25 5 42")
	require.NoError(t, err)

	out, err = run("relations")
	require.NoError(t, err)
	assert.Contains(t, out, "_3 rows_")
	assert.Contains(t, out, "[0, 1)")

	out, err = run("select from l")
	require.NoError(t, err)
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "_4 rows_")

	_, err = run("stats")
	assert.Error(t, err)

	out, err = run("join l r")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 pairs on "), out)

	out, err = run("result")
	require.NoError(t, err)
	assert.Contains(t, out, "400")
	assert.Contains(t, out, "_2 rows_")

	out, err = run("buckets")
	require.NoError(t, err)
	assert.Contains(t, out, "_4 rows_")

	out, err = run("reprobe")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 pairs on "), out)

	out, err = run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped_buckets")

	_, err = run("snapshot " + t.TempDir())
	assert.ErrorIs(t, err, database.ErrInMemory)

	for _, bad := range []string{
		"create",
		"create x 1-2",
		"create l",
		"generate g2 x 5",
		"generate g2 5 0",
		"select l",
		"select from nope",
		"join l",
		"join l nope",
		"result now",
	} {
		_, err := run(bad)
		assert.Error(t, err, bad)
	}
}
