package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: table_sessions.restaurant_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}

func TestIsUndefinedColumnErr(t *testing.T) {
	assert.True(t, IsUndefinedColumnErr(&pgconn.PgError{Code: "42703"}))
	assert.True(t, IsUndefinedColumnErr(errors.New("SQL logic error: no such column: delivered_at (1)")))
	assert.False(t, IsUndefinedColumnErr(gorm.ErrRecordNotFound))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	err := Classify(&pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, err, ErrTransientStore)

	err = Classify(fmt.Errorf("load: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTransientStore)

	plain := errors.New("check constraint")
	assert.Equal(t, plain, Classify(plain))
}
