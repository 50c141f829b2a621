package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/tablemap/pkg/models"
)

func membershipsTable(t *testing.T) *Table {
	return staticTable(t, "memberships",
		[]models.FieldInfo{
			{Field: "group_id", Type: "int(10)", Key: "PRI"},
			{Field: "user_id", Type: "int(10)", Key: "PRI"},
			{Field: "role", Type: "varchar(16)", Null: "YES"},
		},
		[]models.IndexInfo{
			{KeyName: "PRIMARY", ColumnName: "group_id", SeqInIndex: 1},
			{KeyName: "PRIMARY", ColumnName: "user_id", SeqInIndex: 2},
			{KeyName: "role_idx", ColumnName: "role", SeqInIndex: 1},
		})
}

func TestNewKey(t *testing.T) {
	tbl := membershipsTable(t)

	k, err := tbl.NewKey("", "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, PrimaryIndex, k.Index)
	assert.Equal(t, []string{"group_id", "user_id"}, k.Columns)
	assert.Equal(t, "PRIMARY[1,2]", k.String())

	_, err = tbl.NewKey(PrimaryIndex, "", 1)
	assert.ErrorIs(t, err, ErrKeyArity)

	_, err = tbl.NewKey("nope_idx", "", 1)
	assert.ErrorIs(t, err, ErrUnknownIndex)

	_, err = New(testLogger()).NewKey("", "", 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestKeyEqualNormalizesValues(t *testing.T) {
	tbl := membershipsTable(t)

	a, err := tbl.NewKey("", "", 1, 2)
	require.NoError(t, err)
	b, err := tbl.NewKey("", "", int64(1), uint16(2))
	require.NoError(t, err)
	c, err := tbl.NewKey("", "", "1", "2")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.Equal(t, a.ID(), b.ID())

	other, err := tbl.NewKey("", "", 1, 3)
	require.NoError(t, err)
	assert.False(t, a.Equal(other))

	selected, err := tbl.NewKey("", "brief", 1, 2)
	require.NoError(t, err)
	assert.False(t, a.Equal(selected))

	byRole, err := tbl.NewKey("role_idx", "", "1")
	require.NoError(t, err)
	single, err := staticTable(t, "x",
		[]models.FieldInfo{{Field: "role", Type: "varchar(16)", Key: "PRI"}},
		[]models.IndexInfo{{KeyName: "PRIMARY", ColumnName: "role", SeqInIndex: 1}},
	).NewKey("", "", "1")
	require.NoError(t, err)
	assert.False(t, byRole.Equal(single))
}

func TestKeyCondition(t *testing.T) {
	tbl := membershipsTable(t)

	k, err := tbl.NewKey("", "", 1, 2)
	require.NoError(t, err)
	sql, args := k.Condition()
	assert.Equal(t, "(`group_id` = ? AND `user_id` = ?)", sql)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, args)

	nullRole, err := tbl.NewKey("role_idx", "", nil)
	require.NoError(t, err)
	sql, args = nullRole.Condition()
	assert.Equal(t, "(`role` IS NULL)", sql)
	assert.Empty(t, args)

	other, err := tbl.NewKey("", "", 3, 4)
	require.NoError(t, err)
	sql, args = keysCondition([]Key{k, other})
	assert.Equal(t, "((`group_id` = ? AND `user_id` = ?) OR (`group_id` = ? AND `user_id` = ?))", sql)
	assert.Len(t, args, 4)
}

func TestKeyMatches(t *testing.T) {
	tbl := membershipsTable(t)
	row, err := tbl.NewRow()
	require.NoError(t, err)
	require.NoError(t, row.Set("group_id", 1))
	require.NoError(t, row.Set("user_id", 2))
	row.SetMode(ModeUpdate)
	row.ClearModified()

	k, err := tbl.NewKey("", "", 1, 2)
	require.NoError(t, err)
	assert.True(t, k.Matches(row))
	assert.True(t, k.MatchesModified(row))

	require.NoError(t, row.Set("user_id", 5))
	assert.False(t, k.Matches(row))
	assert.True(t, k.MatchesModified(row))

	moved, err := tbl.NewKey("", "", 1, 5)
	require.NoError(t, err)
	assert.True(t, moved.Matches(row))
	assert.False(t, moved.MatchesModified(row))
}

func TestGroupIDs(t *testing.T) {
	tbl := membershipsTable(t)
	s := tbl.schema

	keys, err := groupIDs(s, PrimaryIndex, "", []interface{}{1, 2, 3, 4})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, []interface{}{int64(3), int64(4)}, keys[1].Values)

	explicit, err := tbl.NewKey("", "", 7, 8)
	require.NoError(t, err)
	keys, err = groupIDs(s, PrimaryIndex, "", []interface{}{[]interface{}{5, 6}, explicit})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.True(t, keys[1].Equal(explicit))

	_, err = groupIDs(s, PrimaryIndex, "", []interface{}{1, 2, 3})
	assert.ErrorIs(t, err, ErrKeyArity)

	_, err = groupIDs(s, PrimaryIndex, "", []interface{}{[]interface{}{1}})
	assert.ErrorIs(t, err, ErrKeyArity)

	_, err = groupIDs(s, "missing", "", []interface{}{1})
	assert.ErrorIs(t, err, ErrUnknownIndex)
}
