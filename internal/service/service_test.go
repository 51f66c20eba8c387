package service

import (
	"fmt"
	"testing"

	"NeighborSafe/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

var testUserSeq int

func newTestUser(t *testing.T, db *gorm.DB, moderator bool) *models.User {
	testUserSeq++
	phone := fmt.Sprintf("+1555000%04d", testUserSeq)
	user, err := models.CreateUser(db, phone, "", "secret123", fmt.Sprintf("user%d", testUserSeq))
	require.NoError(t, err)
	if moderator {
		user.IsModerator = true
		require.NoError(t, db.Save(user).Error)
	}
	return user
}
