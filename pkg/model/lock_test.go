package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ctenopoma/issuer/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRecord_MarshalJSON(t *testing.T) {
	at := time.Date(2026, 3, 4, 9, 30, 15, 999, time.Local)
	data, err := json.Marshal(model.LockRecord{Owner: "alice", AcquiredAt: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"alice","locked_at":"2026-03-04T09:30:15"}`, string(data))
}

func TestParseLockRecord_LocalLayout(t *testing.T) {
	rec, err := model.ParseLockRecord([]byte(`{"user": "alice", "locked_at": "2026-03-04T09:30:15"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 30, 15, 0, time.Local), rec.AcquiredAt)
}

func TestParseLockRecord_RFC3339(t *testing.T) {
	rec, err := model.ParseLockRecord([]byte(`{"user":"bob","locked_at":"2026-03-04T09:30:15+09:00","updated_at":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Owner)
	assert.True(t, rec.AcquiredAt.Equal(time.Date(2026, 3, 4, 0, 30, 15, 0, time.UTC)))
}

func TestParseLockRecord_Corrupt(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"garbage":      "\x00\xff not json",
		"array":        `["alice"]`,
		"string":       `"alice"`,
		"truncated":    `{"user": "alice", "locked_at": "2026-03`,
		"missing user": `{"locked_at": "2026-03-04T09:30:15"}`,
		"empty user":   `{"user": "  ", "locked_at": "2026-03-04T09:30:15"}`,
		"missing time": `{"user": "alice"}`,
		"bad time":     `{"user": "alice", "locked_at": "yesterday"}`,
		"numeric time": `{"user": "alice", "locked_at": 1700000000}`,
		"numeric user": `{"user": 7, "locked_at": "2026-03-04T09:30:15"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := model.ParseLockRecord([]byte(content))
			require.ErrorIs(t, err, model.ErrCorruptLock)
		})
	}
}

func TestLockRecord_IsZombieStrict(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local)
	threshold := time.Hour

	exact := model.LockRecord{Owner: "alice", AcquiredAt: now.Add(-threshold)}
	assert.False(t, exact.IsZombie(now, threshold), "exactly threshold old is not a zombie")

	over := model.LockRecord{Owner: "alice", AcquiredAt: now.Add(-threshold - time.Second)}
	assert.True(t, over.IsZombie(now, threshold))
}

func TestAgeHours(t *testing.T) {
	assert.Equal(t, 1.5, model.AgeHours(90*time.Minute))
	assert.Equal(t, 0.0, model.AgeHours(time.Minute))
	assert.Equal(t, 2.3, model.AgeHours(2*time.Hour+17*time.Minute))
}

func TestStoreFiles(t *testing.T) {
	assert.Equal(t, []string{"data.db", "data.db-wal", "data.db-shm"}, model.StoreFiles("data.db"))
}

func TestZombieChoice_Valid(t *testing.T) {
	assert.True(t, model.ChoiceForce.Valid())
	assert.True(t, model.ChoiceViewOnly.Valid())
	assert.False(t, model.ZombieChoice("maybe").Valid())
}
