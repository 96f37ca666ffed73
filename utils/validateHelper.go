package utils

import (
	"context"
	"errors"
	"reflect"

	"gorm.io/gorm"
)

// ValidateUnique fails with "duplicate <column>" when another row (other than exceptId) holds value.
func ValidateUnique[T any](ctx context.Context, db *gorm.DB, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if exceptId == nil || reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, db, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, db, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records matching condition
func ResourceCountWhere[T any](ctx context.Context, db *gorm.DB, condition string, value ...interface{}) (int64, error) {
	var model T
	var count int64
	if err := db.WithContext(ctx).Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
