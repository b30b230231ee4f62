package models

import (
	"context"
	"slices"

	"gorm.io/gorm"
)

type Replacer interface {
	Identifier // getID() int
	fillable() map[string]interface{}
}

// upsert one-to-many association, insert new, update old, delete left ids
func ReplaceAssociation[T Replacer](ctx context.Context,
	tx *gorm.DB, input []T, cond string, vars ...interface{}) error {

	var v T
	var validIds []int
	if err := tx.WithContext(ctx).
		Model(&v).
		Where(cond, vars...).
		Pluck("id", &validIds).Error; err != nil {
		return err
	}

	var updates []T
	var inserts []T

	for _, assoc := range input {

		// update
		if assoc.GetId() > 0 {
			// if id exists and is valid
			if index := slices.Index(validIds, assoc.GetId()); index >= 0 {
				// update
				updates = append(updates, assoc)
				// remove id from slice which will be cleared after
				validIds = append(validIds[:index], validIds[index+1:]...)
				continue
			}
		}
		inserts = append(inserts, assoc)
	}

	// do inserts
	if len(inserts) > 0 {
		if err := tx.WithContext(ctx).Omit("id").Create(&inserts).Error; err != nil {
			return err
		}
	}
	// updates
	if len(updates) > 0 {
		for _, update := range updates {
			var currentValue T
			// fetch before updating
			if err := tx.First(&currentValue, update.GetId()).Error; err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Model(&currentValue).Updates(update.fillable()).Error; err != nil {
				return err
			}
		}
	}
	// delete ids left/not included in input
	if len(validIds) > 0 {
		if err := tx.WithContext(ctx).Where("id IN ?", validIds).Delete(&v).Error; err != nil {
			return err
		}
	}
	return nil
}
