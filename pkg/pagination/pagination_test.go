package pagination

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC), ID: uuid.New()}

	encoded := EncodeCursor(cursor)
	require.Equal(t, encoded, url.QueryEscape(encoded))

	parsed, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.True(t, cursor.CreatedAt.Equal(parsed.CreatedAt))
	require.Equal(t, cursor.ID, parsed.ID)
}

func TestParseCursor(t *testing.T) {
	parsed, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, parsed)

	for _, bad := range []string{"not-base64!", "bm8tc2VwYXJhdG9y", EncodeCursor(Cursor{})[:10]} {
		_, err := ParseCursor(bad)
		require.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func TestNewestWalksEveryRowOnce(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		// pairs share a timestamp so the id tiebreak is exercised
		require.NoError(t, db.Create(&row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}).Error)
	}

	seen := map[uuid.UUID]bool{}
	var cursor *Cursor
	pages := 0
	for {
		var rows []row
		require.NoError(t, db.Scopes(Newest(cursor, LimitWithBuffer(3))).Find(&rows).Error)
		page, next := Trim(rows, 3, func(r row) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} })
		pages++
		for _, r := range page {
			require.False(t, seen[r.ID], "row returned twice")
			seen[r.ID] = true
		}
		if next == "" {
			break
		}
		cursor, err = ParseCursor(next)
		require.NoError(t, err)
	}
	require.Len(t, seen, 7)
	require.Equal(t, 3, pages)
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 2, key)
	require.Len(t, page, 2)
	require.Equal(t, EncodeCursor(rows[1]), next)

	page, next = Trim(rows, 5, key)
	require.Len(t, page, 3)
	require.Empty(t, next)
}
