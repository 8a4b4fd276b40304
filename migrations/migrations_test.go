package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestActiveSlotIndexIsPartial(t *testing.T) {
	raw, err := fs.ReadFile(FS, "0001_init.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	assert.Contains(t, schema, "CREATE SEQUENCE IF NOT EXISTS appointment_id_seq")
	// the Postgres repository recognises slot conflicts by this index name
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_uniq\n")
	assert.Contains(t, schema, "ON appointments (doctor_id, appt_date, appt_minute)\n    WHERE status IN ('pending', 'completed')")
}
